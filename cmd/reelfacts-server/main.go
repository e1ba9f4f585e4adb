// Package main provides the read-only HTTP API over the run ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/reelfacts/internal/app"
	"github.com/raphaelgruber/reelfacts/internal/config"
	"github.com/raphaelgruber/reelfacts/internal/server"
)

func main() {
	cfg := config.Load()

	logger, closeLogger := config.SetupLogger(config.LogOptions{File: cfg.LogFile, Level: cfg.LogLevel})
	defer func() { _ = closeLogger() }()

	logger.Info("starting reelfacts-server", "port", cfg.ServerPort, "ledger", cfg.Ledger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.NewLedgerOnly(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open run ledger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("failed to close ledger", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      server.NewHTTPHandler(a.Ledger, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("run API available", "url", fmt.Sprintf("http://localhost:%s/runs", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
