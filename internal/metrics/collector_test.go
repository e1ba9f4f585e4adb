package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Aggregates(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpUpload, 100*time.Millisecond)
	c.RecordTiming(OpUpload, 300*time.Millisecond)
	c.RecordError(OpUpload, 50*time.Millisecond)
	c.RecordModelUsage(OpAnalyzePrecise, time.Second, 1200, 300)

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 2)
	assert.Equal(t, OpAnalyzePrecise, snap.Operations[0].Name)

	upload := snap.Op(OpUpload)
	require.NotNil(t, upload)
	assert.Equal(t, int64(3), upload.Count)
	assert.Equal(t, int64(1), upload.Errors)
	assert.Equal(t, int64(50), upload.MinTimeMs)
	assert.Equal(t, int64(300), upload.MaxTimeMs)
	assert.Nil(t, upload.TotalInputTokens)

	analyze := snap.Op(OpAnalyzePrecise)
	require.NotNil(t, analyze.TotalInputTokens)
	assert.Equal(t, int64(1200), *analyze.TotalInputTokens)
	assert.Equal(t, int64(300), *analyze.TotalOutputTokens)
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpProbe, time.Second)
	c.RecordModelUsage(OpAnalyzeFast, time.Second, 1, 1)
	assert.Empty(t, c.Snapshot().Operations)
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(StepOp("menu_pass1"), time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), c.Snapshot().Op("step:menu_pass1").Count)
}
