package frames

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleTimestamps(t *testing.T) {
	ts := SampleTimestamps(30, 10)
	require.Len(t, ts, 10)
	assert.InDelta(t, 1.5, ts[0], 1e-9)
	assert.InDelta(t, 28.5, ts[9], 1e-9)
	for i := 1; i < len(ts); i++ {
		assert.InDelta(t, 3.0, ts[i]-ts[i-1], 1e-9)
	}

	assert.Nil(t, SampleTimestamps(0, 10))
	assert.Nil(t, SampleTimestamps(30, 0))
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams":[
			{"codec_type":"video","width":1080,"height":1920,"r_frame_rate":"30000/1001","duration":"47.0"},
			{"codec_type":"audio"}
		],
		"format":{"duration":"47.047","size":"5242880"}
	}`)

	info, err := parseProbe(data)
	require.NoError(t, err)
	assert.InDelta(t, 47.047, info.DurationSeconds, 1e-9)
	assert.Equal(t, 1080, info.Width)
	assert.Equal(t, 1920, info.Height)
	assert.InDelta(t, 29.97, info.FrameRate, 0.01)
	assert.True(t, info.HasAudio)
	assert.Equal(t, int64(5242880), info.SizeBytes)

	t.Run("stream duration fallback", func(t *testing.T) {
		info, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","duration":"12.5","r_frame_rate":"25"}],"format":{}}`))
		require.NoError(t, err)
		assert.InDelta(t, 12.5, info.DurationSeconds, 1e-9)
		assert.InDelta(t, 25.0, info.FrameRate, 1e-9)
		assert.False(t, info.HasAudio)
	})

	t.Run("audio only", func(t *testing.T) {
		_, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`))
		assert.Error(t, err)
	})
}

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 30.0, parseRate("30/1"), 1e-9)
	assert.Zero(t, parseRate("30/0"))
	assert.Zero(t, parseRate(""))
}

// fakeBinary writes an executable shell script standing in for ffmpeg.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestExtractFrameAt(t *testing.T) {
	t.Run("writes frame", func(t *testing.T) {
		// The output path is the last argument.
		bin := fakeBinary(t, `for last; do :; done; printf jpeg > "$last"`)
		f := New(bin, "", t.TempDir())

		path, err := f.ExtractFrameAt(context.Background(), "/videos/luigis.mp4", 12.5)
		require.NoError(t, err)
		assert.Equal(t, "luigis_00012500ms.jpg", filepath.Base(path))
		assert.FileExists(t, path)
	})

	t.Run("ffmpeg failure", func(t *testing.T) {
		bin := fakeBinary(t, `echo "invalid data" >&2; exit 1`)
		f := New(bin, "", t.TempDir())

		_, err := f.ExtractFrameAt(context.Background(), "clip.mp4", 1)
		assert.ErrorIs(t, err, ErrFrameMaterialization)
		assert.Contains(t, err.Error(), "invalid data")
	})

	t.Run("no output past end", func(t *testing.T) {
		bin := fakeBinary(t, `exit 0`)
		f := New(bin, "", t.TempDir())

		_, err := f.ExtractFrameAt(context.Background(), "clip.mp4", 999)
		assert.ErrorIs(t, err, ErrFrameMaterialization)
	})

	t.Run("negative timestamp", func(t *testing.T) {
		f := New("ffmpeg", "", t.TempDir())
		_, err := f.ExtractFrameAt(context.Background(), "clip.mp4", -1)
		assert.ErrorIs(t, err, ErrFrameMaterialization)
	})
}

func TestCheckDependencies_Missing(t *testing.T) {
	f := New("definitely-not-ffmpeg-xyz", "definitely-not-ffprobe-xyz", "")
	assert.Error(t, f.CheckDependencies())
	assert.False(t, f.DependencyStatus().FFmpegFound)
}
