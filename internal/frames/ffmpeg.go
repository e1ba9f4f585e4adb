// Package frames wraps ffmpeg and ffprobe for probing videos and pulling still frames.
package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrFrameMaterialization marks a failed extraction of a single frame.
var ErrFrameMaterialization = errors.New("frame materialization failed")

// VideoInfo is the subset of ffprobe output the pipeline records.
type VideoInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FrameRate       float64 `json:"frame_rate"`
	HasAudio        bool    `json:"has_audio"`
	SizeBytes       int64   `json:"size_bytes"`
}

// FFmpeg extracts frames into OutDir using external binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	OutDir      string
}

// New returns an FFmpeg using the given binaries, defaulting to names on PATH.
func New(ffmpegPath, ffprobePath, outDir string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, OutDir: outDir}
}

// DependencyReport lists which binaries were found.
type DependencyReport struct {
	FFmpegFound  bool   `json:"ffmpeg_found"`
	FFmpegPath   string `json:"ffmpeg_path,omitempty"`
	FFprobeFound bool   `json:"ffprobe_found"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
}

// DependencyStatus resolves both binaries.
func (f *FFmpeg) DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(f.FFmpegPath); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath(f.FFprobePath); err == nil {
		report.FFprobeFound = true
		report.FFprobePath = path
	}
	return report
}

// CheckDependencies returns an error naming the first missing binary.
func (f *FFmpeg) CheckDependencies() error {
	report := f.DependencyStatus()
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", f.FFmpegPath)
	}
	if !report.FFprobeFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", f.FFprobePath)
	}
	return nil
}

// ExtractFrameAt writes the frame at ts seconds as a JPEG and returns its path.
// Errors wrap ErrFrameMaterialization.
func (f *FFmpeg) ExtractFrameAt(ctx context.Context, videoPath string, ts float64) (string, error) {
	if ts < 0 {
		return "", fmt.Errorf("%w: negative timestamp %.3f", ErrFrameMaterialization, ts)
	}
	if err := os.MkdirAll(f.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create output dir: %w", ErrFrameMaterialization, err)
	}

	out := filepath.Join(f.OutDir, frameName(videoPath, ts))
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		out,
	}

	cmd := exec.CommandContext(ctx, f.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w at %.3fs: ffmpeg: %w: %s", ErrFrameMaterialization, ts, err, strings.TrimSpace(stderr.String()))
	}

	// ffmpeg exits 0 without writing when seeking past the end.
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w at %.3fs: no frame written", ErrFrameMaterialization, ts)
	}
	return out, nil
}

func frameName(videoPath string, ts float64) string {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return fmt.Sprintf("%s_%08dms.jpg", base, int64(ts*1000))
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe reads container and stream metadata.
func (f *FFmpeg) Probe(ctx context.Context, videoPath string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return VideoInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := VideoInfo{}
	info.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	info.SizeBytes, _ = strconv.ParseInt(out.Format.Size, 10, 64)

	var hasVideo bool
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if hasVideo {
				continue
			}
			hasVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.FrameRate = parseRate(s.RFrameRate)
			if info.DurationSeconds == 0 {
				info.DurationSeconds, _ = strconv.ParseFloat(s.Duration, 64)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !hasVideo {
		return VideoInfo{}, errors.New("no video stream found")
	}
	return info, nil
}

// parseRate converts "30000/1001" style rates to frames per second.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// SampleTimestamps returns n evenly spaced timestamps across duration,
// each at the midpoint of its slice: (i+0.5)*duration/n.
func SampleTimestamps(duration float64, n int) []float64 {
	if n <= 0 || duration <= 0 {
		return nil
	}
	step := duration / float64(n)
	out := make([]float64, n)
	for i := range out {
		out[i] = (float64(i) + 0.5) * step
	}
	return out
}
