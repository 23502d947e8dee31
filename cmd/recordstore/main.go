package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"recordstore/internal/app"
	"recordstore/internal/config"
	"recordstore/logging"
	"recordstore/utils"

	"github.com/joho/godotenv"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// Load .env file for local development (ignored in production)
	loadEnvFile()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.RawConfig, logger logging.Logger) error {
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      application.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting http server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-sigCtx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-serveErr:
		logger.Errorf("HTTP server failed: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), utils.GetEnvMillis("SHUTDOWN_TIMEOUT_MS", 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Application shutdown error: %v", err)
	}

	logger.Info("Server exited")
	return runErr
}

// defaultConfigPath resolves conf/config.yaml under SERVICE_HOME, or the working directory.
func defaultConfigPath() string {
	return filepath.Join(utils.GetEnv("SERVICE_HOME", "."), "conf", "config.yaml")
}

func initLogger(cfg *config.RawConfig) (logging.Logger, error) {
	logDir := os.Getenv("SERVICE_LOG_DIR")
	if logDir != "" && !filepath.IsAbs(cfg.Logging.FileName) {
		cfg.Logging.FileName = filepath.Join(logDir, cfg.Logging.FileName)
	}

	loggerConfig := cfg.Logging.ConvertToLoggerConfig()
	return logging.NewLogger(&loggerConfig)
}

// loadEnvFile loads .env file for local development
// In production (Docker/K8s), environment variables are set directly
func loadEnvFile() {
	if isRunningInContainer() {
		return
	}

	envPaths := []string{
		".env",
		filepath.Join(os.Getenv("SERVICE_HOME"), ".env"),
	}
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		// Load never overrides variables that are already set
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Failed to load .env from %s: %v", envPath, err)
		}
	}
}

// isRunningInContainer detects if the application is running in a container
func isRunningInContainer() bool {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
