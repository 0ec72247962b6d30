package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"aider-web/internal/devserver"
	"aider-web/internal/logging"

	"go.uber.org/zap"
)

// Config holds server configuration, loaded from environment variables.
type Config struct {
	Port        int
	MaxSessions int
	HistorySize int
	LogLevel    string
}

func loadConfig() Config {
	cfg := Config{
		Port:        5000,
		MaxSessions: 10,
		HistorySize: 200,
		LogLevel:    "info",
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}
	if v := os.Getenv("HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistorySize = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

func main() {
	cfg := loadConfig()

	logger, err := logging.New(cfg.LogLevel, false, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	registry := devserver.NewRegistry(cfg.MaxSessions, cfg.HistorySize,
		devserver.WithRegistryLogger(logger))
	srv := devserver.New(registry, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown on signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		srv.Close()
		registry.Shutdown()
		httpServer.Close()
	}()

	logger.Info("aider dev server running", zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Port)))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
}
