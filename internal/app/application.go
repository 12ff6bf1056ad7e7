// Package app wires the components together and owns process lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"examboard/internal/api"
	"examboard/internal/auth"
	"examboard/internal/config"
	"examboard/internal/database"
	"examboard/internal/files"
	"examboard/internal/hub"
	"examboard/internal/logger"
	"examboard/internal/session"
	"examboard/internal/websocket"
	pkgdatabase "examboard/pkg/database"
)

// Application coordinates all system components. Initialization order:
// Database -> Files -> Sessions -> Auth -> Registry -> Hub -> API -> HTTP.
type Application struct {
	config     *config.Config
	log        zerolog.Logger
	dbManager  *database.Manager
	fileStore  *files.Store
	sessions   *session.Manager
	adminSvc   *auth.Service
	registry   *websocket.Registry
	eventHub   *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication builds the component graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	if cfg.Database.Timeout > 0 {
		dbConfig.ConnMaxLifetime = cfg.Database.Timeout
	}
	dbManager, err := database.NewManager(dbConfig, log)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	fileStore, err := files.NewStore(cfg.Storage.Root, dbManager, log)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("initialize file store: %w", err)
	}

	sessions, err := session.NewManager(context.Background(), dbManager, log)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("initialize session manager: %w", err)
	}

	tokenManager, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("initialize token manager: %w", err)
	}
	adminSvc := auth.NewService(dbManager, log)
	if err := adminSvc.Bootstrap(context.Background(), cfg.Auth.BootstrapPassword); err != nil {
		dbManager.Close()
		return nil, err
	}

	registry := websocket.NewRegistry()
	eventHub := hub.NewHub(registry, fileStore, sessions, tokenManager, log)
	wsHandler := websocket.NewHandler(registry, eventHub, log)

	apiServer := api.NewServer(
		sessions, fileStore, adminSvc, tokenManager, eventHub,
		dbManager, registry, wsHandler.HandleWebSocket, log,
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		log:        log,
		dbManager:  dbManager,
		fileStore:  fileStore,
		sessions:   sessions,
		adminSvc:   adminSvc,
		registry:   registry,
		eventHub:   eventHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start launches the hub and the HTTP server.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info().Str("addr", app.httpServer.Addr).Msg("starting examboard")

	if err := app.eventHub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.eventHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info().Msg("examboard started")
		return nil
	case <-ctx.Done():
		app.eventHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts the system down in reverse dependency order.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info().Msg("shutting down examboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Warn().Err(err).Msg("HTTP shutdown")
	}
	if err := app.eventHub.Stop(); err != nil {
		app.log.Warn().Err(err).Msg("hub shutdown")
	}
	if err := app.dbManager.Close(); err != nil {
		app.log.Warn().Err(err).Msg("database shutdown")
	}

	app.log.Info().Msg("examboard shutdown complete")
	return nil
}

// Addr returns the server address for external connections.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
