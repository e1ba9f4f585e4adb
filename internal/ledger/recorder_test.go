package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/reelfacts/internal/metrics"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

func newTestLedger(t *testing.T) (*Ledger, *metrics.Collector) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := metrics.NewCollector()
	return New(store, m, slog.Default()), m
}

func TestRecorder_CompleteLifecycle(t *testing.T) {
	l, m := newTestLedger(t)
	rec := l.Begin(map[string]any{models.MetaVideoPath: "/v/luigis.mp4"})
	require.NotEmpty(t, rec.ID())

	step := rec.StartStep(StepSpec{Name: "menu_pass1", Prompt: "list items", Tier: "precise"})
	step.Warn("price unreadable")
	require.NoError(t, step.Complete(map[string]any{"items": 3}))
	assert.ErrorIs(t, step.Complete(nil), ErrStepFinished)

	result := &models.ExtractionResult{}
	report := &models.QualityReport{Rating: models.RatingFair}
	require.NoError(t, rec.Complete(result, report))
	assert.ErrorIs(t, rec.Fail(errors.New("late")), ErrRunFinished)
	assert.ErrorIs(t, rec.Complete(result, report), ErrRunFinished)

	run := rec.Snapshot()
	assert.Equal(t, models.StatusCompleted, run.Status)
	require.NotNil(t, run.EndedAt)
	assert.Nil(t, run.Error)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, []string{"price unreadable"}, run.Steps[0].Warnings)
	assert.Equal(t, "precise", run.Steps[0].Tier)
	assert.NotNil(t, run.Steps[0].EndedAt)

	assert.Equal(t, int64(1), m.Snapshot().Op(metrics.StepOp("menu_pass1")).Count)
}

func TestRecorder_CompleteRequiresResultAndReport(t *testing.T) {
	l, _ := newTestLedger(t)
	rec := l.Begin(nil)

	assert.Error(t, rec.Complete(nil, &models.QualityReport{}))
	assert.Error(t, rec.Complete(&models.ExtractionResult{}, nil))
	assert.Equal(t, models.StatusRunning, rec.Status())
}

func TestRecorder_FailedStepHasNoOutput(t *testing.T) {
	l, m := newTestLedger(t)
	rec := l.Begin(nil)

	step := rec.StartStep(StepSpec{Name: "upload"})
	require.NoError(t, step.Fail(errors.New("connection reset")))

	run := rec.Snapshot()
	assert.Equal(t, models.StatusFailed, run.Steps[0].Status)
	require.NotNil(t, run.Steps[0].Error)
	assert.Equal(t, "connection reset", *run.Steps[0].Error)
	assert.Nil(t, run.Steps[0].Output)
	assert.Equal(t, int64(1), m.Snapshot().Op(metrics.StepOp("upload")).Errors)
}

func TestRecorder_CompleteWithFallback(t *testing.T) {
	l, _ := newTestLedger(t)
	rec := l.Begin(nil)

	step := rec.StartStep(StepSpec{Name: "style"})
	require.NoError(t, step.CompleteWithFallback(models.DefaultStyleProfile(), "unparseable response"))

	s := rec.Snapshot().Steps[0]
	assert.Equal(t, models.StatusCompleted, s.Status)
	assert.True(t, s.Fallback)
	assert.Equal(t, []string{"unparseable response"}, s.Warnings)
	assert.Equal(t, models.DefaultStyleProfile(), s.Output)
}

func TestRecorder_FailClosesRunningSteps(t *testing.T) {
	l, _ := newTestLedger(t)
	rec := l.Begin(nil)

	done := rec.StartStep(StepSpec{Name: "probe"})
	require.NoError(t, done.Complete("ok"))
	rec.StartStep(StepSpec{Name: "frames"})

	require.NoError(t, rec.Fail(errors.New("remote call failed")))

	run := rec.Snapshot()
	assert.Equal(t, models.StatusFailed, run.Status)
	require.NotNil(t, run.Error)
	for _, s := range run.Steps {
		assert.True(t, s.Status.Terminal(), s.Name)
	}
	assert.Equal(t, models.StatusCompleted, run.Steps[0].Status)
	assert.Contains(t, *run.Steps[1].Error, "run aborted")
}

func TestRecorder_SnapshotIsIsolated(t *testing.T) {
	l, _ := newTestLedger(t)
	rec := l.Begin(map[string]any{"k": "v"})
	step := rec.StartStep(StepSpec{Name: "frames"})

	snap := rec.Snapshot()
	step.Warn("later warning")
	rec.SetMeta("k", "changed")

	assert.Empty(t, snap.Steps[0].Warnings)
	assert.Equal(t, "v", snap.Metadata["k"])
}

func TestRecorder_ConcurrentSteps(t *testing.T) {
	l, _ := newTestLedger(t)
	rec := l.Begin(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := rec.StartStep(StepSpec{Name: "materialize_frame"})
			s.Warn("w")
			_ = s.Complete(i)
		}()
	}
	wg.Wait()

	run := rec.Snapshot()
	require.Len(t, run.Steps, 16)
	for _, s := range run.Steps {
		assert.Equal(t, models.StatusCompleted, s.Status)
		assert.Len(t, s.Warnings, 1)
	}
}

func TestLedger_FinalizeAndRead(t *testing.T) {
	l, m := newTestLedger(t)
	ctx := context.Background()

	rec := l.Begin(map[string]any{models.MetaVideoPath: "/v/a.mp4"})
	assert.Error(t, l.Finalize(ctx, rec), "running runs cannot be persisted")

	require.NoError(t, rec.Fail(errors.New("boom")))
	require.NoError(t, l.Finalize(ctx, rec))

	run, err := l.LoadRun(ctx, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, run.Status)
	assert.Equal(t, "boom", *run.Error)

	recent, err := l.ListRecentRuns(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "/v/a.mp4", recent[0].VideoPath)

	assert.Equal(t, int64(1), m.Snapshot().Op(metrics.OpLedgerSave).Count)
}
