package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/reelfacts/internal/models"
)

func finishedRun(id string, started time.Time) *models.Run {
	ended := started.Add(time.Second)
	return &models.Run{
		ID:        id,
		Status:    models.StatusCompleted,
		StartedAt: started,
		EndedAt:   &ended,
		Metadata:  map[string]any{models.MetaVideoPath: "/v/" + id + ".mp4"},
		Steps:     []models.Step{{ID: "s1", Name: "upload", Status: models.StatusCompleted, StartedAt: started}},
		Result:    &models.ExtractionResult{Style: models.DefaultStyleProfile()},
		Quality:   &models.QualityReport{Rating: models.RatingFair, Overall: 0.65},
	}
}

func TestMergeIndex(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var index []models.RunSummary
	for i := 0; i < MaxRecentRuns+20; i++ {
		index = mergeIndex(index, finishedRun(fmt.Sprintf("r%03d", i), base.Add(time.Duration(i)*time.Minute)).Summary())
	}

	require.Len(t, index, MaxRecentRuns)
	assert.Equal(t, "r119", index[0].ID)
	assert.Equal(t, "r020", index[len(index)-1].ID)

	// Re-saving an existing run replaces its entry rather than duplicating it.
	updated := finishedRun("r119", base.Add(119*time.Minute)).Summary()
	updated.Status = models.StatusFailed
	index = mergeIndex(index, updated)
	require.Len(t, index, MaxRecentRuns)
	assert.Equal(t, models.StatusFailed, index[0].Status)
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	run := finishedRun("abc", time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.LoadRun(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, models.RatingFair, loaded.Quality.Rating)
	assert.True(t, loaded.Result.Style.IsDefault())

	recent, err := store.ListRecent(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 0.65, recent[0].Overall)

	// No temp files or lock left behind.
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"abc.json", indexFileName}, names)
}

func TestFileStore_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = store.LoadRun(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrRunNotFound)

	recent, err := store.ListRecent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestFileStore_ConcurrentSavesKeepEveryEntry(t *testing.T) {
	dir := t.TempDir()
	// Two stores on one directory stand in for two processes.
	a, err := NewFileStore(dir)
	require.NoError(t, err)
	b, err := NewFileStore(dir)
	require.NoError(t, err)

	base := time.Now().UTC()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		store := a
		if i%2 == 1 {
			store = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.SaveRun(context.Background(), finishedRun(fmt.Sprintf("run-%02d", i), base.Add(time.Duration(i)*time.Second))))
		}()
	}
	wg.Wait()

	recent, err := a.ListRecent(context.Background())
	require.NoError(t, err)
	assert.Len(t, recent, 20)
	assert.Equal(t, "run-19", recent[0].ID)
}

func TestDirLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := acquireDirLock(context.Background(), dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = acquireDirLock(ctx, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pid=")

	require.NoError(t, lock.release())
	again, err := acquireDirLock(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, again.release())

	t.Run("stale lock is broken", func(t *testing.T) {
		lockDir := filepath.Join(dir, indexLockDirName)
		require.NoError(t, os.Mkdir(lockDir, 0o755))
		old := time.Now().Add(-time.Hour)
		require.NoError(t, os.Chtimes(lockDir, old, old))

		lock, err := acquireDirLock(context.Background(), dir)
		require.NoError(t, err)
		require.NoError(t, lock.release())
	})
}
