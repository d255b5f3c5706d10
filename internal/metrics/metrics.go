package metrics

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Metrics holds all Plotform counters for the stats and Prometheus endpoints.
type Metrics struct {
	startTime time.Time

	// HTTP request metrics
	httpRequestsTotal   atomic.Int64
	httpRequestsSuccess atomic.Int64
	httpRequestsError   atomic.Int64

	// HTTP latency histogram buckets (microseconds)
	// Buckets: 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, +Inf
	httpLatencyBuckets [10]atomic.Int64
	httpLatencySum     atomic.Int64
	httpLatencyCount   atomic.Int64

	// Record ingestion metrics
	ingestRecordsTotal atomic.Int64
	ingestBytesTotal   atomic.Int64
	ingestBatchesTotal atomic.Int64
	ingestErrorsTotal  atomic.Int64

	// MessagePack specific
	msgpackRequestsTotal atomic.Int64
	msgpackRecordsTotal  atomic.Int64

	// Filter engine metrics
	filterAppliesTotal atomic.Int64
	filtersActive      atomic.Int64

	// Aggregation pipeline metrics
	deriveRunsTotal  atomic.Int64
	deriveRowsTotal  atomic.Int64
	deriveLatencySum atomic.Int64 // microseconds
	deriveLatencyCnt atomic.Int64

	// Drag intent metrics
	intentsResolvedTotal atomic.Int64
	intentsRejectedTotal atomic.Int64

	// Cross-filter metrics
	crossfilterSetsTotal   atomic.Int64
	crossfilterClearsTotal atomic.Int64

	// Board persistence metrics
	boardSavesTotal atomic.Int64
	boardLoadsTotal atomic.Int64

	// Auth metrics
	authRequestsTotal atomic.Int64
	authFailuresTotal atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{startTime: time.Now()}
	})
	return instance
}

// Init attaches a logger to the singleton.
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Info().Msg("Metrics collector initialized")
	return m
}

// HTTP metrics
func (m *Metrics) IncHTTPRequests() { m.httpRequestsTotal.Add(1) }
func (m *Metrics) IncHTTPSuccess()  { m.httpRequestsSuccess.Add(1) }
func (m *Metrics) IncHTTPError()    { m.httpRequestsError.Add(1) }

// RecordHTTPLatency records request latency in microseconds.
func (m *Metrics) RecordHTTPLatency(durationMicros int64) {
	m.httpLatencySum.Add(durationMicros)
	m.httpLatencyCount.Add(1)
	m.httpLatencyBuckets[latencyBucket(durationMicros)].Add(1)
}

func latencyBucket(micros int64) int {
	switch {
	case micros <= 1000:
		return 0
	case micros <= 5000:
		return 1
	case micros <= 10000:
		return 2
	case micros <= 25000:
		return 3
	case micros <= 50000:
		return 4
	case micros <= 100000:
		return 5
	case micros <= 250000:
		return 6
	case micros <= 500000:
		return 7
	case micros <= 1000000:
		return 8
	default:
		return 9
	}
}

// Ingestion metrics
func (m *Metrics) IncIngestRecords(count int64) { m.ingestRecordsTotal.Add(count) }
func (m *Metrics) IncIngestBytes(bytes int64)   { m.ingestBytesTotal.Add(bytes) }
func (m *Metrics) IncIngestBatches()            { m.ingestBatchesTotal.Add(1) }
func (m *Metrics) IncIngestErrors()             { m.ingestErrorsTotal.Add(1) }

// MessagePack metrics
func (m *Metrics) IncMsgPackRequests()           { m.msgpackRequestsTotal.Add(1) }
func (m *Metrics) IncMsgPackRecords(count int64) { m.msgpackRecordsTotal.Add(count) }

// Filter metrics
func (m *Metrics) IncFilterApplies()          { m.filterAppliesTotal.Add(1) }
func (m *Metrics) SetFiltersActive(n int64)   { m.filtersActive.Store(n) }

// Pipeline metrics
func (m *Metrics) IncDeriveRuns()            { m.deriveRunsTotal.Add(1) }
func (m *Metrics) IncDeriveRows(count int64) { m.deriveRowsTotal.Add(count) }

// RecordDeriveLatency records aggregation latency in microseconds.
func (m *Metrics) RecordDeriveLatency(durationMicros int64) {
	m.deriveLatencySum.Add(durationMicros)
	m.deriveLatencyCnt.Add(1)
}

// Intent metrics
func (m *Metrics) IncIntentsResolved() { m.intentsResolvedTotal.Add(1) }
func (m *Metrics) IncIntentsRejected() { m.intentsRejectedTotal.Add(1) }

// Cross-filter metrics
func (m *Metrics) IncCrossfilterSets()   { m.crossfilterSetsTotal.Add(1) }
func (m *Metrics) IncCrossfilterClears() { m.crossfilterClearsTotal.Add(1) }

// Board metrics
func (m *Metrics) IncBoardSaves() { m.boardSavesTotal.Add(1) }
func (m *Metrics) IncBoardLoads() { m.boardLoadsTotal.Add(1) }

// Auth metrics
func (m *Metrics) IncAuthRequests() { m.authRequestsTotal.Add(1) }
func (m *Metrics) IncAuthFailures() { m.authFailuresTotal.Add(1) }

// Snapshot returns all metrics as a map for the JSON stats endpoint.
func (m *Metrics) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		// Process info
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
		"num_cpu":        runtime.NumCPU(),

		// Memory (Go runtime)
		"memory_alloc_bytes":      memStats.Alloc,
		"memory_sys_bytes":        memStats.Sys,
		"memory_heap_alloc_bytes": memStats.HeapAlloc,
		"gc_cycles":               memStats.NumGC,

		// HTTP
		"http_requests_total":   m.httpRequestsTotal.Load(),
		"http_requests_success": m.httpRequestsSuccess.Load(),
		"http_requests_error":   m.httpRequestsError.Load(),
		"http_latency_sum_us":   m.httpLatencySum.Load(),
		"http_latency_count":    m.httpLatencyCount.Load(),

		// Ingestion
		"ingest_records_total": m.ingestRecordsTotal.Load(),
		"ingest_bytes_total":   m.ingestBytesTotal.Load(),
		"ingest_batches_total": m.ingestBatchesTotal.Load(),
		"ingest_errors_total":  m.ingestErrorsTotal.Load(),

		// MessagePack
		"msgpack_requests_total": m.msgpackRequestsTotal.Load(),
		"msgpack_records_total":  m.msgpackRecordsTotal.Load(),

		// Filters
		"filter_applies_total": m.filterAppliesTotal.Load(),
		"filters_active":       m.filtersActive.Load(),

		// Pipeline
		"derive_runs_total":     m.deriveRunsTotal.Load(),
		"derive_rows_total":     m.deriveRowsTotal.Load(),
		"derive_latency_sum_us": m.deriveLatencySum.Load(),
		"derive_latency_count":  m.deriveLatencyCnt.Load(),

		// Intents
		"intents_resolved_total": m.intentsResolvedTotal.Load(),
		"intents_rejected_total": m.intentsRejectedTotal.Load(),

		// Cross-filter
		"crossfilter_sets_total":   m.crossfilterSetsTotal.Load(),
		"crossfilter_clears_total": m.crossfilterClearsTotal.Load(),

		// Boards
		"board_saves_total": m.boardSavesTotal.Load(),
		"board_loads_total": m.boardLoadsTotal.Load(),

		// Auth
		"auth_requests_total": m.authRequestsTotal.Load(),
		"auth_failures_total": m.authFailuresTotal.Load(),
	}
}

// PrometheusFormat renders the metrics in Prometheus text exposition format.
func (m *Metrics) PrometheusFormat() string {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var b []byte
	counter := func(name, help string, v float64) {
		b = append(b, "# HELP "+name+" "+help+"\n"...)
		b = append(b, "# TYPE "+name+" counter\n"...)
		b = appendMetric(b, name, v)
	}
	gauge := func(name, help string, v float64) {
		b = append(b, "# HELP "+name+" "+help+"\n"...)
		b = append(b, "# TYPE "+name+" gauge\n"...)
		b = appendMetric(b, name, v)
	}

	gauge("plotform_uptime_seconds", "Time since the server started", time.Since(m.startTime).Seconds())
	gauge("plotform_goroutines", "Number of goroutines", float64(runtime.NumGoroutine()))
	gauge("plotform_memory_alloc_bytes", "Current allocated memory", float64(memStats.Alloc))
	gauge("plotform_memory_heap_alloc_bytes", "Heap memory allocated", float64(memStats.HeapAlloc))
	counter("plotform_gc_cycles_total", "Total number of GC cycles", float64(memStats.NumGC))

	counter("plotform_http_requests_total", "Total HTTP requests", float64(m.httpRequestsTotal.Load()))
	counter("plotform_http_requests_success_total", "Successful HTTP requests", float64(m.httpRequestsSuccess.Load()))
	counter("plotform_http_requests_error_total", "Failed HTTP requests", float64(m.httpRequestsError.Load()))

	// HTTP latency histogram
	b = append(b, "# HELP plotform_http_latency_seconds HTTP request latency\n"...)
	b = append(b, "# TYPE plotform_http_latency_seconds histogram\n"...)
	bucketLabels := []string{"0.001", "0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "1", "+Inf"}
	var cumulative int64
	for i, label := range bucketLabels {
		cumulative += m.httpLatencyBuckets[i].Load()
		b = append(b, fmt.Sprintf("plotform_http_latency_seconds_bucket{le=%q} %d\n", label, cumulative)...)
	}
	b = append(b, fmt.Sprintf("plotform_http_latency_seconds_sum %f\n", float64(m.httpLatencySum.Load())/1e6)...)
	b = append(b, fmt.Sprintf("plotform_http_latency_seconds_count %d\n", m.httpLatencyCount.Load())...)

	counter("plotform_ingest_records_total", "Total records ingested", float64(m.ingestRecordsTotal.Load()))
	counter("plotform_ingest_bytes_total", "Total bytes ingested", float64(m.ingestBytesTotal.Load()))
	counter("plotform_ingest_batches_total", "Total ingest batches", float64(m.ingestBatchesTotal.Load()))
	counter("plotform_ingest_errors_total", "Total ingest errors", float64(m.ingestErrorsTotal.Load()))
	counter("plotform_msgpack_requests_total", "Total MessagePack ingest requests", float64(m.msgpackRequestsTotal.Load()))
	counter("plotform_filter_applies_total", "Total filter applications", float64(m.filterAppliesTotal.Load()))
	gauge("plotform_filters_active", "Currently active filters", float64(m.filtersActive.Load()))
	counter("plotform_derive_runs_total", "Total aggregation runs", float64(m.deriveRunsTotal.Load()))
	counter("plotform_derive_rows_total", "Total chart rows derived", float64(m.deriveRowsTotal.Load()))
	counter("plotform_intents_resolved_total", "Total drag intents resolved", float64(m.intentsResolvedTotal.Load()))
	counter("plotform_intents_rejected_total", "Total drag intents rejected", float64(m.intentsRejectedTotal.Load()))
	counter("plotform_crossfilter_sets_total", "Total cross-filter selections", float64(m.crossfilterSetsTotal.Load()))
	counter("plotform_crossfilter_clears_total", "Total cross-filter clears", float64(m.crossfilterClearsTotal.Load()))
	counter("plotform_board_saves_total", "Total board saves", float64(m.boardSavesTotal.Load()))
	counter("plotform_board_loads_total", "Total board loads", float64(m.boardLoadsTotal.Load()))
	counter("plotform_auth_requests_total", "Total authenticated requests", float64(m.authRequestsTotal.Load()))
	counter("plotform_auth_failures_total", "Total authentication failures", float64(m.authFailuresTotal.Load()))

	return string(b)
}

func appendMetric(b []byte, name string, value float64) []byte {
	return append(b, fmt.Sprintf("%s %f\n", name, value)...)
}
