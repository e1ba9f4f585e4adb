package ledger

import (
	"context"
	"errors"
	"slices"

	"github.com/raphaelgruber/reelfacts/internal/models"
)

// MaxRecentRuns bounds the recent-runs index.
const MaxRecentRuns = 100

// ErrRunNotFound is returned when a run ID is unknown to the store.
var ErrRunNotFound = errors.New("run not found")

// Store persists finalized runs and maintains the recent-runs index.
// SaveRun must serialize index updates across concurrent callers.
type Store interface {
	SaveRun(ctx context.Context, run *models.Run) error
	LoadRun(ctx context.Context, id string) (*models.Run, error)
	ListRecent(ctx context.Context) ([]models.RunSummary, error)
}

// mergeIndex inserts s into index, replacing any entry with the same ID,
// and returns at most MaxRecentRuns entries, most recently started first.
func mergeIndex(index []models.RunSummary, s models.RunSummary) []models.RunSummary {
	out := make([]models.RunSummary, 0, len(index)+1)
	out = append(out, s)
	for _, e := range index {
		if e.ID != s.ID {
			out = append(out, e)
		}
	}

	slices.SortStableFunc(out, func(a, b models.RunSummary) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	if len(out) > MaxRecentRuns {
		out = out[:MaxRecentRuns]
	}
	return out
}
