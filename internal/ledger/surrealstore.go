package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/reelfacts/internal/db"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

// RunDB is the subset of the SurrealDB client used by SurrealStore.
type RunDB interface {
	QueryUpsertRun(ctx context.Context, rec db.RunRecord) error
	QueryGetRunDocument(ctx context.Context, id string) (string, error)
	QueryListRunSummaries(ctx context.Context, limit int) ([]string, error)
}

// SurrealStore keeps runs in the SurrealDB run table. The recent index is an
// ordered query, so each save is a single upsert with no read-modify-write.
type SurrealStore struct {
	db     RunDB
	logger *slog.Logger
}

var _ Store = (*SurrealStore)(nil)

// NewSurrealStore wraps a connected client.
func NewSurrealStore(client RunDB, logger *slog.Logger) *SurrealStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurrealStore{db: client, logger: logger}
}

const maxConflictRetries = 3

// SaveRun upserts the run, retrying on transaction conflicts.
func (s *SurrealStore) SaveRun(ctx context.Context, run *models.Run) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	summary := run.Summary()
	sum, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	rec := db.RunRecord{
		ID:           run.ID,
		Status:       string(run.Status),
		StartedMs:    run.StartedAt.UnixMilli(),
		UsedFallback: summary.UsedFallback,
		Summary:      string(sum),
		Document:     string(doc),
	}
	if summary.VideoPath != "" {
		rec.VideoPath = &summary.VideoPath
	}
	if summary.Rating != "" {
		rating := string(summary.Rating)
		rec.Rating = &rating
	}

	for attempt := 1; ; attempt++ {
		err = s.db.QueryUpsertRun(ctx, rec)
		if err == nil || !errors.Is(err, db.ErrTransactionConflict) || attempt >= maxConflictRetries {
			return err
		}
		s.logger.Debug("run upsert conflict, retrying", "run_id", run.ID, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
}

// LoadRun fetches and decodes one run.
func (s *SurrealStore) LoadRun(ctx context.Context, id string) (*models.Run, error) {
	doc, err := s.db.QueryGetRunDocument(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
		}
		return nil, err
	}

	var run models.Run
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRecent returns the most recently started runs.
func (s *SurrealStore) ListRecent(ctx context.Context) ([]models.RunSummary, error) {
	rows, err := s.db.QueryListRunSummaries(ctx, MaxRecentRuns)
	if err != nil {
		return nil, err
	}

	out := make([]models.RunSummary, 0, len(rows))
	for _, row := range rows {
		var summary models.RunSummary
		if err := json.Unmarshal([]byte(row), &summary); err != nil {
			s.logger.Warn("skipping undecodable run summary", "error", err)
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}
