package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

// RunRecord is the stored form of one run.
type RunRecord struct {
	ID           string  `json:"-"`
	Status       string  `json:"status"`
	StartedMs    int64   `json:"started_ms"`
	VideoPath    *string `json:"video_path,omitempty"`
	UsedFallback bool    `json:"used_fallback"`
	Rating       *string `json:"rating,omitempty"`
	Summary      string  `json:"summary"`
	Document     string  `json:"document"`
}

// QueryUpsertRun creates or replaces a run record by ID.
func (c *Client) QueryUpsertRun(ctx context.Context, rec RunRecord) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("run", $id) SET
			status = $status,
			started_ms = $started_ms,
			video_path = $video_path,
			used_fallback = $used_fallback,
			rating = $rating,
			summary = $summary,
			document = $document
	`, map[string]any{
		"id":            rec.ID,
		"status":        rec.Status,
		"started_ms":    rec.StartedMs,
		"video_path":    rec.VideoPath,
		"used_fallback": rec.UsedFallback,
		"rating":        rec.Rating,
		"summary":       rec.Summary,
		"document":      rec.Document,
	})
	if err != nil {
		return fmt.Errorf("upsert run: %w", wrapQueryError(err))
	}
	return nil
}

// QueryGetRunDocument returns the stored JSON document for a run.
// Returns ErrNotFound if no such run exists.
func (c *Client) QueryGetRunDocument(ctx context.Context, id string) (string, error) {
	results, err := surrealdb.Query[[]struct {
		Document string `json:"document"`
	}](ctx, c.db, `
		SELECT document FROM type::record("run", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return "", fmt.Errorf("get run: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return (*results)[0].Result[0].Document, nil
}

// QueryListRunSummaries returns summary documents, most recently started first.
func (c *Client) QueryListRunSummaries(ctx context.Context, limit int) ([]string, error) {
	results, err := surrealdb.Query[[]struct {
		Summary   string `json:"summary"`
		StartedMs int64  `json:"started_ms"`
	}](ctx, c.db, `
		SELECT summary, started_ms FROM run ORDER BY started_ms DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []string{}, nil
	}
	rows := (*results)[0].Result
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Summary)
	}
	return out, nil
}

// QueryCountRuns returns the number of stored runs.
func (c *Client) QueryCountRuns(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct{ C int }](ctx, c.db, `SELECT count() AS c FROM run GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}
