package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/reelfacts/internal/config"
	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/metrics"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

func ptr[T any](v T) *T { return &v }

func testRecorder(t *testing.T, meta map[string]any) *ledger.Recorder {
	t.Helper()
	l := ledger.New(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return l.Begin(meta)
}

func TestRenderResult(t *testing.T) {
	result := &models.ExtractionResult{
		Restaurant: models.DefaultRestaurantInfo(),
		Style:      models.DefaultStyleProfile(),
		Menu: models.MenuExtraction{
			Items: []models.MenuItem{
				{Name: "Margherita", Price: ptr(12.5), Confidence: 0.9},
				{Name: "Tiramisu", Confidence: 0.7, NeedsReview: true},
			},
			Verified: true,
		},
		Frames: []models.SelectedFrame{
			{Timestamp: 3.5, Category: models.CategoryFood, Priority: models.PriorityHigh, ImagePath: "/tmp/f1.jpg"},
		},
		FrameFailures: []string{"frame at 9.00s: boom"},
	}
	result.Restaurant.Name = ptr("Luigi's")
	report := &models.QualityReport{
		Overall: 0.82,
		Rating:  models.RatingGood,
		Issues:  []models.Issue{{Severity: models.SeverityWarning, Category: models.IssueMenu, Message: "1 item needs review"}},
	}

	var buf bytes.Buffer
	renderResult(&buf, defaultTheme, "run-1", result, report, true)
	out := buf.String()

	assert.Contains(t, out, "Luigi's")
	assert.Contains(t, out, "Menu (2 items, verified)")
	assert.Contains(t, out, "12.50")
	assert.Contains(t, out, "Margherita")
	assert.Contains(t, out, "(review)")
	assert.Contains(t, out, "#2563eb")
	assert.Contains(t, out, "/tmp/f1.jpg")
	assert.Contains(t, out, "frame at 9.00s: boom")
	assert.Contains(t, out, "GOOD")
	assert.Contains(t, out, "1 item needs review")
	assert.Contains(t, out, "Run run-1 (image fallback)")
}

func TestRenderResult_UnnamedUnverified(t *testing.T) {
	result := &models.ExtractionResult{
		Restaurant: models.DefaultRestaurantInfo(),
		Style:      models.DefaultStyleProfile(),
	}

	var buf bytes.Buffer
	renderResult(&buf, defaultTheme, "run-2", result, nil, false)

	assert.Contains(t, buf.String(), "(name not detected)")
	assert.Contains(t, buf.String(), "Menu (0 items, unverified)")
	assert.NotContains(t, buf.String(), "Quality")
}

func TestRenderRunList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		renderRunList(&buf, nil)
		assert.Equal(t, "No runs found\n", buf.String())
	})

	t.Run("rows", func(t *testing.T) {
		var buf bytes.Buffer
		renderRunList(&buf, []models.RunSummary{
			{ID: "a", Status: models.StatusCompleted, Rating: models.RatingFair, VideoPath: "/v/a.mp4", StartedAt: time.Now()},
			{ID: "b", Status: models.StatusFailed, UsedFallback: true, StartedAt: time.Now()},
		})
		out := buf.String()
		assert.Contains(t, out, "/v/a.mp4")
		assert.Contains(t, out, "fair")
		assert.Contains(t, out, "yes")
	})
}

func TestRenderRun(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(1500 * time.Millisecond)
	run := &models.Run{
		ID:        "run-3",
		Status:    models.StatusFailed,
		StartedAt: started,
		EndedAt:   &ended,
		Metadata:  map[string]any{models.MetaVideoPath: "/v/c.mp4"},
		Error:     ptr("upload: rejected"),
		Steps: []models.Step{
			{Name: "probe", Status: models.StatusCompleted, DurationMs: 12},
			{Name: "select_frames", Status: models.StatusCompleted, Fallback: true, Tier: "precise", Warnings: []string{"evenly spaced"}},
			{Name: "upload", Status: models.StatusFailed, Error: ptr("rejected")},
		},
	}

	var buf bytes.Buffer
	renderRun(&buf, defaultTheme, run)
	out := buf.String()

	assert.Contains(t, out, "Run: run-3")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.Contains(t, out, "video_path: /v/c.mp4")
	assert.Contains(t, out, "Error: upload: rejected")
	assert.Contains(t, out, "Steps (3):")
	assert.Contains(t, out, "↺")
	assert.Contains(t, out, "[precise]")
	assert.Contains(t, out, "evenly spaced")
	assert.Contains(t, out, "✗")
}

func TestRenderStats(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordModelUsage("analysis.precise", 40*time.Millisecond, 1200, 300)
	c.RecordTiming("frames.extract", 10*time.Millisecond)

	var buf bytes.Buffer
	renderStats(&buf, c.Snapshot())
	out := buf.String()

	assert.Contains(t, out, "analysis.precise")
	assert.Contains(t, out, "1200")
	assert.Contains(t, out, "frames.extract")
}

func TestProgressModel(t *testing.T) {
	rec := testRecorder(t, map[string]any{models.MetaUsedFallback: false})
	for _, name := range []string{"probe", "upload"} {
		require.NoError(t, rec.StartStep(ledger.StepSpec{Name: name}).Complete(nil))
	}
	rec.StartStep(ledger.StepSpec{Name: "select_frames"})
	rec.StartStep(ledger.StepSpec{Name: "menu_enumerate"})

	m := newProgressModel(func() *ledger.Recorder { return rec })
	assert.Contains(t, m.renderContent(), "Starting extraction")

	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(progressModel)
	require.NotNil(t, m.run)
	assert.InDelta(t, 2.0/primarySteps, m.percent(), 1e-9)
	assert.Equal(t, []string{"select_frames", "menu_enumerate"}, m.active())
	assert.Contains(t, m.renderContent(), "[primary]")

	next, cmd := m.Update(extractDoneMsg{err: errors.New("boom")})
	m = next.(progressModel)
	assert.True(t, m.done)
	assert.NotNil(t, cmd)
	assert.Equal(t, 1.0, m.percent())
	assert.Contains(t, m.renderContent(), "Extraction failed: boom")
}

func TestProgressModel_FallbackScale(t *testing.T) {
	rec := testRecorder(t, map[string]any{models.MetaUsedFallback: true})
	require.NoError(t, rec.StartStep(ledger.StepSpec{Name: "probe"}).Complete(nil))

	m := newProgressModel(func() *ledger.Recorder { return rec })
	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(progressModel)

	assert.InDelta(t, 1.0/fallbackSteps, m.percent(), 1e-9)
	assert.Contains(t, m.renderContent(), "[fallback]")
}

func TestProgressModel_Quit(t *testing.T) {
	m := newProgressModel(func() *ledger.Recorder { return nil })
	next, cmd := m.Update(tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl})
	m = next.(progressModel)

	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.renderContent(), "Canceling")
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestPingCheck(t *testing.T) {
	ok := pingCheck(context.Background(), "surrealdb", "ws://db:8000", fakePinger{})
	assert.True(t, ok.ok)
	assert.Equal(t, "ws://db:8000", ok.info)

	down := pingCheck(context.Background(), "surrealdb", "ws://db:8000", fakePinger{err: errors.New("connection refused")})
	assert.False(t, down.ok)
	assert.Contains(t, down.info, "connection refused")
}

func TestDoctorChecks_FileLedger(t *testing.T) {
	checks := doctorChecks(context.Background(), config.Config{
		FFmpegPath:  "reelfacts-missing-ffmpeg",
		FFprobePath: "reelfacts-missing-ffprobe",
		Ledger:      config.LedgerFile,
		LedgerDir:   t.TempDir(),
	})

	byName := map[string]check{}
	for _, c := range checks {
		byName[c.name] = c
	}
	assert.False(t, byName["ffmpeg"].ok)
	assert.False(t, byName["gemini api key"].ok)
	assert.True(t, byName["run ledger"].ok)
	_, pinged := byName["surrealdb"]
	assert.False(t, pinged)
}
