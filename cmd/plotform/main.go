package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plotform-labs/plotform/internal/api"
	"github.com/plotform-labs/plotform/internal/auth"
	"github.com/plotform-labs/plotform/internal/board"
	"github.com/plotform-labs/plotform/internal/composition"
	"github.com/plotform-labs/plotform/internal/config"
	"github.com/plotform-labs/plotform/internal/crossfilter"
	"github.com/plotform-labs/plotform/internal/dataset"
	"github.com/plotform-labs/plotform/internal/filter"
	"github.com/plotform-labs/plotform/internal/intent"
	"github.com/plotform-labs/plotform/internal/logger"
	"github.com/plotform-labs/plotform/internal/metrics"
	"github.com/plotform-labs/plotform/internal/shutdown"
)

// Version is set at build time
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting Plotform...")

	// Initialize metrics collector
	metrics.Init(logger.Get("metrics"))

	// Start timeseries collector (1s samples, 30 minute retention)
	tsCollector := metrics.GetTimeSeriesCollector()
	tsCollector.Start()

	// Initialize shutdown coordinator
	shutdownCoordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))
	shutdownCoordinator.RegisterHook("timeseries-collector", func(ctx context.Context) error {
		tsCollector.Stop()
		return nil
	}, shutdown.PriorityHTTPServer)

	// Field catalog: file-backed when configured, built-in otherwise
	var catalog *dataset.Catalog
	if cfg.Dataset.CatalogPath != "" {
		catalog, err = dataset.LoadCatalog(cfg.Dataset.CatalogPath, logger.Get("catalog"))
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Dataset.CatalogPath).Msg("Failed to load field catalog")
		}
		log.Info().Str("path", cfg.Dataset.CatalogPath).Int("fields", len(catalog.Fields())).Msg("Field catalog loaded")
	} else {
		catalog = dataset.DefaultCatalog()
		log.Info().Int("fields", len(catalog.Fields())).Msg("Using built-in field catalog")
	}

	// Record source
	source := dataset.NewSource(dataset.SourceConfig{
		Path:            cfg.Dataset.Path,
		Format:          cfg.Dataset.Format,
		RefreshSchedule: cfg.Dataset.RefreshSchedule,
	}, logger.Get("dataset"))
	if cfg.Dataset.Path != "" {
		count, err := source.Load(context.Background())
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Dataset.Path).Msg("Failed to load dataset")
		}
		log.Info().Int("records", count).Str("path", cfg.Dataset.Path).Msg("Dataset loaded")

		if cfg.Dataset.RefreshSchedule != "" {
			if err := source.StartRefresh(); err != nil {
				log.Fatal().Err(err).Str("schedule", cfg.Dataset.RefreshSchedule).Msg("Invalid dataset refresh schedule")
			}
			log.Info().Str("schedule", cfg.Dataset.RefreshSchedule).Msg("Dataset refresh scheduled")
		}
	} else {
		log.Info().Msg("No dataset file configured - records arrive via the API")
	}
	shutdownCoordinator.Register("dataset", source, shutdown.PriorityDataset)

	// Filtering and composition state
	filters := filter.NewStore(logger.Get("filter"))
	cross := crossfilter.NewCoordinator(logger.Get("crossfilter"))
	state := composition.NewState(logger.Get("composition"))

	// Deleting a visual drops its cross-filter; deleting a slicer drops its
	// field filter; clearing all filters resets slicer selections.
	state.SetHooks(cross.ClearIfSource, filters.Remove)
	filters.SetClearHook(state.ResetSlicerSelections)

	// Board store
	boardStore, err := board.NewStore(cfg.Board.DBPath, logger.Get("board"))
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Board.DBPath).Msg("Failed to initialize board store")
	}
	shutdownCoordinator.Register("board-store", boardStore, shutdown.PriorityBoardStore)

	// Drag intent router
	router := intent.NewRouter(state, catalog, source, filters, logger.Get("intent"))

	// Initialize AuthManager (if enabled)
	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		authManager, err = auth.NewManager(
			cfg.Auth.DBPath,
			time.Duration(cfg.Auth.CacheTTL)*time.Second,
			cfg.Auth.MaxCacheSize,
			logger.Get("auth"),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize auth manager")
		}
		shutdownCoordinator.Register("auth", authManager, shutdown.PriorityAuth)

		// Restrict SQLite database file permissions (contains auth tokens)
		if err := os.Chmod(cfg.Auth.DBPath, 0600); err != nil {
			log.Warn().Err(err).Str("path", cfg.Auth.DBPath).Msg("Failed to set database file permissions")
		}

		// Create initial admin token if this is first run
		if token, err := authManager.EnsureInitialToken(); err != nil {
			log.Error().Err(err).Msg("Failed to create initial admin token")
		} else if token != "" {
			// Print colorized banner to stderr (bypasses structured logging)
			const (
				cyan   = "\033[96m"
				yellow = "\033[93m"
				bold   = "\033[1m"
				reset  = "\033[0m"
			)
			banner := cyan + "======================================================================" + reset
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, banner)
			fmt.Fprintln(os.Stderr, cyan+bold+"  FIRST RUN - INITIAL ADMIN TOKEN GENERATED"+reset)
			fmt.Fprintln(os.Stderr, banner)
			fmt.Fprintln(os.Stderr, yellow+bold+"  Initial admin API token: "+token+reset)
			fmt.Fprintln(os.Stderr, banner)
			fmt.Fprintln(os.Stderr, cyan+"  SAVE THIS TOKEN! It will not be shown again."+reset)
			fmt.Fprintln(os.Stderr, cyan+"  Use this token to call the API."+reset)
			fmt.Fprintln(os.Stderr, cyan+"  You can create additional tokens after logging in."+reset)
			fmt.Fprintln(os.Stderr, banner)
			fmt.Fprintln(os.Stderr)
		}

		log.Info().
			Str("db_path", cfg.Auth.DBPath).
			Int("cache_ttl", cfg.Auth.CacheTTL).
			Int("max_cache_size", cfg.Auth.MaxCacheSize).
			Msg("Authentication enabled")
	} else {
		log.Warn().Msg("Authentication is DISABLED - all endpoints are public")
	}

	// Initialize HTTP server
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxPayloadSize:  cfg.Server.MaxPayloadSize,
	}
	server := api.NewServer(serverConfig, logger.Get("server"))

	// Register base routes
	server.RegisterRoutes()

	// Apply auth middleware if enabled
	if authManager != nil {
		middlewareConfig := auth.DefaultMiddlewareConfig()
		middlewareConfig.Manager = authManager
		server.GetApp().Use(auth.NewMiddleware(middlewareConfig))

		tokensHandler := api.NewTokensHandler(authManager, logger.Get("auth-api"))
		tokensHandler.RegisterRoutes(server.GetApp())
	}

	// Register domain handlers
	recordsHandler := api.NewRecordsHandler(source, catalog, logger.Get("records-api"))
	recordsHandler.RegisterRoutes(server.GetApp())

	filtersHandler := api.NewFiltersHandler(filters, cross, logger.Get("filters-api"))
	filtersHandler.RegisterRoutes(server.GetApp())

	sheetsHandler := api.NewSheetsHandler(state, router, source, filters, cross, logger.Get("sheets-api"))
	sheetsHandler.RegisterRoutes(server.GetApp())

	boardsHandler := api.NewBoardsHandler(boardStore, state, logger.Get("boards-api"))
	boardsHandler.RegisterRoutes(server.GetApp())

	// Start HTTP server
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}
	shutdownCoordinator.RegisterHook("http-server", func(ctx context.Context) error {
		return server.Shutdown(serverConfig.ShutdownTimeout)
	}, shutdown.PriorityHTTPServer)

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Plotform ready")

	// Wait for shutdown signal
	sig := shutdownCoordinator.WaitForSignal()
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	if err := shutdownCoordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}
