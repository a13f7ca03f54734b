package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"brigadas-analytics/internal/api"
	"brigadas-analytics/internal/cache"
	"brigadas-analytics/internal/config"
	"brigadas-analytics/internal/crypto"
	"brigadas-analytics/internal/database"
	"brigadas-analytics/internal/logging"
	"brigadas-analytics/internal/server"
	"brigadas-analytics/internal/services/hierarchy"
	"brigadas-analytics/internal/services/profiles"
	"brigadas-analytics/internal/services/scheduler"
)

const shutdownTimeout = 10 * time.Second

// App struct - main application state
type App struct {
	ctx    context.Context
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	snapshots        *database.SnapshotStore
	profileService   *profiles.Service
	hierarchyService *hierarchy.Service
	schedulerService *scheduler.Service
}

// NewApp creates a new App from loaded configuration
func NewApp(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// startup initializes logging, encryption, storage and the profile service
func (a *App) startup(ctx context.Context) error {
	a.ctx = ctx

	logger, err := logging.New(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logger.Info("Application starting up...")

	// Profiles cannot be saved or read without encryption, but the database gateway still works
	sealer, err := crypto.LoadSealer(a.logger)
	if err != nil {
		a.logger.Warn("Encryption unavailable; connection profiles are disabled", zap.Error(err))
	}

	db, err := database.Init(a.cfg.Database, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db
	a.logger.Info("Database initialized successfully")

	a.snapshots = database.NewSnapshotStore(db)
	a.profileService = profiles.NewService(database.NewProfileStore(db), sealer, a.logger)
	return nil
}

// initHierarchy connects the configured gateway and builds the hierarchy service
func (a *App) initHierarchy(ctx context.Context) error {
	gateway, err := a.gateway(ctx)
	if err != nil {
		return err
	}

	store := cache.New[any](a.cfg.Cache.TTL, a.cfg.Cache.MaxEntries)
	a.hierarchyService = hierarchy.NewService(gateway, store,
		hierarchy.WithActivityWindow(a.cfg.ActivityWindow),
		hierarchy.WithLogger(a.logger))
	a.logger.Info("Hierarchy service initialized",
		zap.String("gateway", a.cfg.Gateway.Mode),
		zap.Duration("cache_ttl", a.cfg.Cache.TTL),
		zap.Int("cache_max_entries", a.cfg.Cache.MaxEntries))

	return nil
}

// startScheduler loads and starts the scheduled jobs. Failures are not fatal.
func (a *App) startScheduler() {
	a.schedulerService = scheduler.NewService(a.ctx, a.db, a.hierarchyService, a.snapshots, a.logger)
	if err := a.schedulerService.Start(); err != nil {
		a.logger.Warn("Failed to start scheduler", zap.Error(err))
		return
	}
	a.logger.Info("Scheduler service initialized and started")
}

// shutdown stops the scheduler and closes the database
func (a *App) shutdown() {
	if a.logger == nil {
		return
	}
	a.logger.Info("Application shutting down...")

	if a.schedulerService != nil {
		a.schedulerService.Stop()
	}

	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Error("Error closing database", zap.Error(err))
		}
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
}

// gateway selects the raw data source: the local database, or the REST endpoint
// given by GATEWAY_URL or by a stored connection profile.
func (a *App) gateway(ctx context.Context) (hierarchy.Gateway, error) {
	switch a.cfg.Gateway.Mode {
	case config.GatewayDatabase:
		return database.NewHierarchyStore(a.db), nil

	case config.GatewayREST:
		var client *api.Client
		switch {
		case a.cfg.Gateway.URL != "":
			client = api.NewClient(a.cfg.Gateway.URL, a.cfg.Gateway.APIKey)
		case a.cfg.Gateway.Profile != "":
			c, err := a.profileService.Client(ctx, a.cfg.Gateway.Profile)
			if err != nil {
				return nil, fmt.Errorf("failed to load gateway profile %q: %w", a.cfg.Gateway.Profile, err)
			}
			client = c
		default:
			return nil, errors.New("rest gateway requires GATEWAY_URL or GATEWAY_PROFILE")
		}
		client.SetTimeout(a.cfg.Gateway.Timeout)
		return client, nil

	default:
		return nil, fmt.Errorf("unknown gateway %q", a.cfg.Gateway.Mode)
	}
}

// serve runs the HTTP API until ctx is cancelled, then shuts down gracefully
func (a *App) serve(ctx context.Context) error {
	a.startScheduler()

	router := server.NewRouter(&server.Handlers{
		Hierarchy: a.hierarchyService,
		Jobs:      a.schedulerService,
		Snapshots: a.snapshots,
		Profiles:  a.profileService,
		Logger:    a.logger,
	})

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
