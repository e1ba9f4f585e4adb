// Package app wires configuration into the run ledger, the analysis clients
// and the extraction pipeline. Binaries build an App once at startup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/reelfacts/internal/analysis"
	"github.com/raphaelgruber/reelfacts/internal/config"
	"github.com/raphaelgruber/reelfacts/internal/db"
	"github.com/raphaelgruber/reelfacts/internal/frames"
	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/metrics"
	"github.com/raphaelgruber/reelfacts/internal/pipeline"
	"github.com/raphaelgruber/reelfacts/internal/scoring"
)

// App holds the wired components.
type App struct {
	Config  config.Config
	Metrics *metrics.Collector
	Ledger  *ledger.Ledger

	// Set by New only.
	Frames    *frames.FFmpeg
	Extractor *pipeline.Extractor

	logger  *slog.Logger
	closers []func(context.Context) error
}

// NewLedgerOnly wires just the run ledger, for commands that read past runs.
func NewLedgerOnly(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Metrics: metrics.NewCollector(), logger: logger}

	l, closeFn, err := NewLedger(ctx, cfg, a.Metrics, logger)
	if err != nil {
		return nil, err
	}
	a.Ledger = l
	if closeFn != nil {
		a.closers = append(a.closers, closeFn)
	}
	return a, nil
}

// New wires the ledger and a ready-to-run extractor.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a, err := NewLedgerOnly(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	policy := scoring.DefaultPolicy()
	if cfg.ScoringPolicy != "" {
		if policy, err = scoring.LoadPolicy(cfg.ScoringPolicy); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}

	gemini, err := analysis.NewGeminiClient(analysis.GeminiConfig{
		BaseURL:      cfg.GeminiURL,
		APIKey:       cfg.GeminiAPIKey,
		PreciseModel: cfg.PreciseModel,
		FastModel:    cfg.FastModel,
		ImageModel:   cfg.FallbackModelName(),
		Metrics:      a.Metrics,
		Logger:       a.logger,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("create analysis client: %w", err)
	}

	images, imgErr := NewImageAnalyzer(ctx, cfg, gemini, a.Metrics, a.logger)
	if imgErr != nil {
		// The primary path still works; only the fallback is lost.
		a.logger.Warn("image fallback disabled", "provider", cfg.FallbackProvider, "error", imgErr)
	}

	a.Frames = frames.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.FramesDir)

	pcfg := pipeline.Config{
		Analyzer:       gemini,
		Remote:         gemini,
		Frames:         a.Frames,
		Ledger:         a.Ledger,
		Policy:         policy,
		PollInterval:   cfg.PollInterval,
		MaxPolls:       cfg.MaxPolls,
		FrameWorkers:   cfg.FrameWorkers,
		FallbackFrames: cfg.FallbackFrames,
		Metrics:        a.Metrics,
		Logger:         a.logger,
	}
	if imgErr == nil {
		pcfg.Images = images
	}
	a.Extractor, err = pipeline.New(pcfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.logger.Debug("extractor ready",
		"precise_model", cfg.PreciseModel,
		"fast_model", cfg.FastModel,
		"fallback_provider", cfg.FallbackProvider,
		"ledger", cfg.Ledger,
	)
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLedger opens the store selected by cfg.Ledger. The returned close
// function is nil for stores that hold no connection.
func NewLedger(ctx context.Context, cfg config.Config, m *metrics.Collector, logger *slog.Logger) (*ledger.Ledger, func(context.Context) error, error) {
	switch cfg.Ledger {
	case config.LedgerFile, "":
		store, err := ledger.NewFileStore(cfg.LedgerDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using file ledger", "dir", store.Dir())
		return ledger.New(store, m, logger), nil, nil

	case config.LedgerSurreal:
		client, err := db.NewClient(ctx, db.ConfigFrom(cfg), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, nil, fmt.Errorf("initialize schema: %w", err)
		}
		logger.Debug("using surrealdb ledger", "url", cfg.SurrealDBURL)
		return ledger.New(ledger.NewSurrealStore(client, logger), m, logger), client.Close, nil

	case config.LedgerS3:
		store, err := ledger.NewS3Store(ctx, ledger.S3Config{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using s3 ledger", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		return ledger.New(store, m, logger), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger)
	}
}

// NewImageAnalyzer builds the fallback image model for cfg.FallbackProvider.
// The gemini provider reuses the primary client.
func NewImageAnalyzer(ctx context.Context, cfg config.Config, gemini *analysis.GeminiClient, m *metrics.Collector, logger *slog.Logger) (analysis.ImageAnalyzer, error) {
	switch cfg.FallbackProvider {
	case config.ProviderGemini, "":
		if gemini == nil {
			return nil, errors.New("gemini client not configured")
		}
		return gemini, nil
	case config.ProviderBedrock:
		b, err := analysis.NewBedrockImages(ctx, cfg.AWSRegion, cfg.FallbackModelName(), m, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.ProviderOllama, config.ProviderOpenAI, config.ProviderAnthropic:
		l, err := analysis.NewLangChainImages(cfg, m, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported fallback provider: %s", cfg.FallbackProvider)
	}
}
