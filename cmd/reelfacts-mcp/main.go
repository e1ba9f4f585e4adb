// Package main provides the entry point for the reelfacts MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/reelfacts/internal/app"
	"github.com/raphaelgruber/reelfacts/internal/config"
	"github.com/raphaelgruber/reelfacts/internal/server"
	"github.com/raphaelgruber/reelfacts/internal/tools"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()

	// stdout carries the MCP protocol; logs go to stderr and the log file.
	logger, closeLogger := config.SetupLogger(config.LogOptions{File: cfg.LogFile, Level: cfg.LogLevel})
	defer func() { _ = closeLogger() }()

	logger.Info("reelfacts-mcp starting",
		"version", version,
		"ledger", cfg.Ledger,
		"precise_model", cfg.PreciseModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	deps := &tools.Dependencies{Logger: logger}

	// Without analysis credentials the server still answers ledger queries.
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Warn("extraction disabled", "error", err)
		a, err = app.NewLedgerOnly(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to open run ledger", "error", err)
			os.Exit(1)
		}
	} else {
		deps.Extractor = a.Extractor
	}
	defer func() {
		logger.Info("closing run ledger")
		_ = a.Close(context.Background())
	}()
	deps.Runs = a.Ledger

	srv := server.New(version, logger)
	srv.Setup()

	count := tools.RegisterAll(srv.MCPServer(), deps)
	logger.Info("tools registered", "count", count)

	logger.Info("server ready, awaiting connections")

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
