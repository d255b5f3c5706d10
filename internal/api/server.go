package api

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/logger"
	"github.com/plotform-labs/plotform/internal/metrics"
)

// Server is the HTTP API server.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	host   string
	port   int
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxPayloadSize  int64
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxPayloadSize:  100 * 1024 * 1024,
	}
}

// NewServer creates a new HTTP server with Fiber.
func NewServer(config *ServerConfig, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	app := fiber.New(fiber.Config{
		AppName:               "Plotform Report Server",
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		IdleTimeout:           config.IdleTimeout,
		BodyLimit:             int(config.MaxPayloadSize),
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		// Preserve gzip-compressed payloads for manual decompression in handlers
		DisablePreParseMultipartForm: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,x-api-key,Content-Encoding",
	}))

	app.Use(securityHeaders())

	// pprof profiling endpoints
	app.Use(pprof.New())

	app.Use(requestLogger(logger))

	return &Server{
		app:    app,
		logger: logger.With().Str("component", "api-server").Logger(),
		host:   config.Host,
		port:   config.Port,
	}
}

// RegisterRoutes registers the server's own operational routes.
func (s *Server) RegisterRoutes() {
	s.app.Get("/health", s.healthHandler)
	s.app.Get("/ready", s.readyHandler)

	// Prometheus-format metrics
	s.app.Get("/metrics", s.metricsHandler)

	// JSON metrics endpoints
	s.app.Get("/api/v1/metrics", s.apiMetricsHandler)
	s.app.Get("/api/v1/metrics/memory", s.memoryMetricsHandler)
	s.app.Get("/api/v1/metrics/timeseries/:type", s.timeseriesMetricsHandler)

	// Application logs endpoint
	s.app.Get("/api/v1/logs", s.logsHandler)
}

var startTime = time.Now()

func (s *Server) healthHandler(c *fiber.Ctx) error {
	uptime := time.Since(startTime)
	return c.JSON(fiber.Map{
		"status":     "ok",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime":     uptime.String(),
		"uptime_sec": uptime.Seconds(),
	})
}

func (s *Server) readyHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "ready",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime_sec": time.Since(startTime).Seconds(),
	})
}

// metricsHandler serves Prometheus text format, or JSON when asked.
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	m := metrics.Get()

	if c.Get("Accept") == "application/json" {
		return c.JSON(m.Snapshot())
	}

	c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	return c.SendString(m.PrometheusFormat())
}

func (s *Server) apiMetricsHandler(c *fiber.Ctx) error {
	snapshot := metrics.Get().Snapshot()
	snapshot["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return c.JSON(snapshot)
}

func (s *Server) memoryMetricsHandler(c *fiber.Ctx) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return c.JSON(fiber.Map{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"memory": fiber.Map{
			"alloc_bytes":         memStats.Alloc,
			"total_alloc_bytes":   memStats.TotalAlloc,
			"sys_bytes":           memStats.Sys,
			"heap_alloc_bytes":    memStats.HeapAlloc,
			"heap_sys_bytes":      memStats.HeapSys,
			"heap_inuse_bytes":    memStats.HeapInuse,
			"heap_released_bytes": memStats.HeapReleased,
			"heap_objects":        memStats.HeapObjects,
			"stack_inuse_bytes":   memStats.StackInuse,
			"gc_cycles":           memStats.NumGC,
			"gc_pause_total_ns":   memStats.PauseTotalNs,
			"next_gc_bytes":       memStats.NextGC,
		},
		"runtime": fiber.Map{
			"goroutines":  runtime.NumGoroutine(),
			"num_cpu":     runtime.NumCPU(),
			"gomaxprocs":  runtime.GOMAXPROCS(0),
			"go_version":  runtime.Version(),
			"go_os":       runtime.GOOS,
			"go_arch":     runtime.GOARCH,
			"uptime_secs": time.Since(startTime).Seconds(),
		},
	})
}

func (s *Server) timeseriesMetricsHandler(c *fiber.Ctx) error {
	metricType := c.Params("type") // system, application, api

	durationMinutes := 30
	if dm := c.Query("duration_minutes"); dm != "" {
		if parsed, err := strconv.Atoi(dm); err == nil && parsed > 0 && parsed <= 1440 {
			durationMinutes = parsed
		}
	}

	collector := metrics.GetTimeSeriesCollector()
	var points []metrics.TimeSeriesPoint

	switch metricType {
	case "system":
		points = collector.GetSystem(durationMinutes)
	case "application":
		points = collector.GetApplication(durationMinutes)
	case "api":
		points = collector.GetAPI(durationMinutes)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":       "Invalid metric type",
			"valid_types": []string{"system", "application", "api"},
		})
	}

	return c.JSON(fiber.Map{
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"type":             metricType,
		"duration_minutes": durationMinutes,
		"points_count":     len(points),
		"data":             points,
	})
}

// logsHandler returns recent application logs from the in-memory ring.
func (s *Server) logsHandler(c *fiber.Ctx) error {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	level := c.Query("level")

	sinceMinutes := 60
	if sm := c.Query("since_minutes"); sm != "" {
		if parsed, err := strconv.Atoi(sm); err == nil && parsed > 0 && parsed <= 1440 {
			sinceMinutes = parsed
		}
	}

	entries := logger.GetRing().Recent(limit, level, time.Duration(sinceMinutes)*time.Minute)

	return c.JSON(fiber.Map{
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"count":         len(entries),
		"limit":         limit,
		"level_filter":  level,
		"since_minutes": sinceMinutes,
		"logs":          entries,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().
		Str("host", s.host).
		Int("port", s.port).
		Msg("Starting Plotform HTTP server")

	go func() {
		addr := fmt.Sprintf("%s:%d", s.host, s.port)
		if err := s.app.Listen(addr); err != nil {
			s.logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info().Msg("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// GetApp returns the underlying Fiber app for registering handler routes.
func (s *Server) GetApp() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("Request error")

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func securityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// HSTS is the reverse proxy's job when TLS terminates there
		return c.Next()
	}
}

// requestLogger collects metrics on every request and logs errors only.
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()
		m := metrics.Get()

		m.IncHTTPRequests()
		m.RecordHTTPLatency(duration.Microseconds())

		if status >= 400 {
			m.IncHTTPError()
		} else {
			m.IncHTTPSuccess()
		}

		// Success paths are not logged; request logging showed up hot in profiles
		if status >= 400 {
			logEvent := logger.Warn()
			if status >= 500 {
				logEvent = logger.Error()
			}
			logEvent.
				Str("method", c.Method()).
				Str("path", c.Path()).
				Int("status", status).
				Dur("duration_ms", duration).
				Int("size", len(c.Response().Body())).
				Str("ip", c.IP()).
				Msg("HTTP request error")
		}

		return err
	}
}
