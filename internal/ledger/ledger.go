// Package ledger records extraction runs step by step and persists them once finished.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/reelfacts/internal/metrics"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

// Ledger creates run recorders and persists finished runs to a Store.
type Ledger struct {
	store   Store
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a ledger backed by store.
func New(store Store, m *metrics.Collector, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, metrics: m, logger: logger}
}

// Begin starts a new run with the given metadata.
func (l *Ledger) Begin(meta map[string]any) *Recorder {
	rec := newRecorder(meta, l.metrics, l.logger)
	rec.Logger().Info("run started", "video", meta[models.MetaVideoPath])
	return rec
}

// Finalize persists a finished run. Runs still in progress are rejected.
func (l *Ledger) Finalize(ctx context.Context, rec *Recorder) error {
	run := rec.Snapshot()
	if !run.Status.Terminal() {
		return fmt.Errorf("finalize run %s: still %s", run.ID, run.Status)
	}

	start := time.Now()
	if err := l.store.SaveRun(ctx, &run); err != nil {
		l.metrics.RecordError(metrics.OpLedgerSave, time.Since(start))
		return fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	l.metrics.RecordTiming(metrics.OpLedgerSave, time.Since(start))

	rec.Logger().Debug("run persisted", "status", run.Status, "steps", len(run.Steps))
	return nil
}

// LoadRun returns a persisted run.
func (l *Ledger) LoadRun(ctx context.Context, id string) (*models.Run, error) {
	return l.store.LoadRun(ctx, id)
}

// ListRecentRuns returns up to MaxRecentRuns summaries, most recent first.
func (l *Ledger) ListRecentRuns(ctx context.Context) ([]models.RunSummary, error) {
	return l.store.ListRecent(ctx)
}
