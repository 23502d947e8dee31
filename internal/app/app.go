package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"recordstore/internal/api"
	"recordstore/internal/config"
	"recordstore/logging"
	"recordstore/recordstore"
)

// Application represents the main application instance that holds configuration and dependencies
type Application struct {
	rawconfig *config.RawConfig
	logger    logging.Logger
	manager   *recordstore.Manager
	handler   *api.Handler
	mutex     sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApplication creates a new application instance. It does not connect to the store.
func NewApplication(cfg *config.RawConfig, logger logging.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	manager, err := recordstore.NewManager(cfg.Store.URI, cfg.Store.ToOptions(), logger.WithField("component", "recordstore"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		rawconfig: cfg,
		logger:    logger,
		manager:   manager,
		handler:   api.NewHandler(logger, manager),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Config returns the application configuration
func (app *Application) Config() *config.RawConfig {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.rawconfig
}

// Logger returns the application logger
func (app *Application) Logger() logging.Logger {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.logger
}

// Context returns the application context
func (app *Application) Context() context.Context {
	return app.ctx
}

// Manager returns the record store connection manager
func (app *Application) Manager() *recordstore.Manager {
	return app.manager
}

// Store returns the record operations bound to the manager
func (app *Application) Store() *recordstore.Store {
	return app.manager.Store()
}

// Handler returns the HTTP handler for the record API
func (app *Application) Handler() http.Handler {
	return app.handler.Routes()
}

// Start connects to the record store.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("Starting application...")

	if err := app.manager.Connect(ctx); err != nil {
		app.logger.Errorw("Failed to connect to record store", "error", err)
		return err
	}

	app.logger.Infow("Application started successfully", "store", app.manager.State().URI)
	return nil
}

// Shutdown disconnects from the record store and cancels the application context.
func (app *Application) Shutdown(ctx context.Context) error {
	app.logger.Info("Shutting down application...")

	var shutdownErr error
	if err := app.manager.Close(ctx); err != nil {
		app.logger.Errorw("Error closing record store", "error", err)
		shutdownErr = err
	}

	app.cancel()

	app.logger.Info("Application shutdown completed")
	return shutdownErr
}

// IsShuttingDown returns true if the application is shutting down
func (app *Application) IsShuttingDown() bool {
	select {
	case <-app.ctx.Done():
		return true
	default:
		return false
	}
}
