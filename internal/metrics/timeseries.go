package metrics

import (
	"runtime"
	"sync"
	"time"
)

// TimeSeriesPoint is a single sampled data point.
type TimeSeriesPoint struct {
	Timestamp time.Time              `json:"timestamp"`
	Values    map[string]interface{} `json:"values"`
}

// TimeSeriesBuffer is a ring of sampled points.
type TimeSeriesBuffer struct {
	mu       sync.RWMutex
	points   []TimeSeriesPoint
	size     int
	writePos int
	count    int
}

// TimeSeriesCollector samples metrics at a fixed interval so the stats UI
// can chart recent history without external storage.
type TimeSeriesCollector struct {
	system      *TimeSeriesBuffer // goroutines, memory, GC
	application *TimeSeriesBuffer // ingest, filters, derivations, intents
	api         *TimeSeriesBuffer // HTTP traffic and latency
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

var (
	tsCollector *TimeSeriesCollector
	tsOnce      sync.Once
)

// GetTimeSeriesCollector returns the singleton collector, starting it on
// first use.
func GetTimeSeriesCollector() *TimeSeriesCollector {
	tsOnce.Do(func() {
		tsCollector = NewTimeSeriesCollector(1800) // 30 minutes of 1s samples
		tsCollector.Start()
	})
	return tsCollector
}

// NewTimeSeriesCollector creates a collector with the given ring capacity.
func NewTimeSeriesCollector(bufferSize int) *TimeSeriesCollector {
	return &TimeSeriesCollector{
		system:      NewTimeSeriesBuffer(bufferSize),
		application: NewTimeSeriesBuffer(bufferSize),
		api:         NewTimeSeriesBuffer(bufferSize),
		stopCh:      make(chan struct{}),
	}
}

// NewTimeSeriesBuffer creates a ring holding up to size points.
func NewTimeSeriesBuffer(size int) *TimeSeriesBuffer {
	return &TimeSeriesBuffer{
		points: make([]TimeSeriesPoint, size),
		size:   size,
	}
}

// Start begins sampling once per second.
func (c *TimeSeriesCollector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

// Stop halts sampling.
func (c *TimeSeriesCollector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *TimeSeriesCollector) collect() {
	now := time.Now()
	m := Get()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.system.Add(TimeSeriesPoint{
		Timestamp: now,
		Values: map[string]interface{}{
			"goroutines":      runtime.NumGoroutine(),
			"memory_alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
			"memory_heap_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
			"gc_cycles":       memStats.NumGC,
		},
	})

	c.application.Add(TimeSeriesPoint{
		Timestamp: now,
		Values: map[string]interface{}{
			"ingest_records_total":   m.ingestRecordsTotal.Load(),
			"filter_applies_total":   m.filterAppliesTotal.Load(),
			"filters_active":         m.filtersActive.Load(),
			"derive_runs_total":      m.deriveRunsTotal.Load(),
			"derive_rows_total":      m.deriveRowsTotal.Load(),
			"intents_resolved_total": m.intentsResolvedTotal.Load(),
			"intents_rejected_total": m.intentsRejectedTotal.Load(),
		},
	})

	c.api.Add(TimeSeriesPoint{
		Timestamp: now,
		Values: map[string]interface{}{
			"http_requests_total":   m.httpRequestsTotal.Load(),
			"http_requests_success": m.httpRequestsSuccess.Load(),
			"http_requests_error":   m.httpRequestsError.Load(),
			"http_latency_avg_us":   avgLatency(m.httpLatencySum.Load(), m.httpLatencyCount.Load()),
			"derive_latency_avg_us": avgLatency(m.deriveLatencySum.Load(), m.deriveLatencyCnt.Load()),
		},
	})
}

func avgLatency(sum, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// Add appends a point, evicting the oldest when full.
func (b *TimeSeriesBuffer) Add(point TimeSeriesPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.points[b.writePos] = point
	b.writePos = (b.writePos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// GetRecent returns points from the last N minutes, oldest first.
func (b *TimeSeriesBuffer) GetRecent(durationMinutes int) []TimeSeriesPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := time.Now().Add(-time.Duration(durationMinutes) * time.Minute)
	var result []TimeSeriesPoint
	for i := 0; i < b.count; i++ {
		idx := (b.writePos - b.count + i + b.size) % b.size
		if b.points[idx].Timestamp.After(cutoff) {
			result = append(result, b.points[idx])
		}
	}
	return result
}

// GetSystem returns system samples from the last N minutes.
func (c *TimeSeriesCollector) GetSystem(durationMinutes int) []TimeSeriesPoint {
	return c.system.GetRecent(durationMinutes)
}

// GetApplication returns application samples from the last N minutes.
func (c *TimeSeriesCollector) GetApplication(durationMinutes int) []TimeSeriesPoint {
	return c.application.GetRecent(durationMinutes)
}

// GetAPI returns API samples from the last N minutes.
func (c *TimeSeriesCollector) GetAPI(durationMinutes int) []TimeSeriesPoint {
	return c.api.GetRecent(durationMinutes)
}
