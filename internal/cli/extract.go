package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/models"
	"github.com/raphaelgruber/reelfacts/internal/pipeline"
)

var (
	extractDuration   float64
	extractJSON       bool
	extractNoProgress bool
	extractStats      bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <video>",
	Short: "Extract facts from a restaurant video",
	Long: `Upload a video for analysis and extract key frames, the menu, restaurant
details and a brand style profile. If the video analysis fails, stills are
sampled locally and analyzed by the configured image model instead.

Every attempt is recorded as a run; inspect it later with 'reelfacts runs <id>'.

Examples:
  reelfacts extract luigis.mp4
  reelfacts extract luigis.mp4 --json > luigis.json
  reelfacts extract clip.webm --duration 42 --stats`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().Float64Var(&extractDuration, "duration", 0, "video duration in seconds, used if ffprobe cannot read the file")
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the result as JSON")
	extractCmd.Flags().BoolVar(&extractNoProgress, "no-progress", false, "disable the progress bar")
	extractCmd.Flags().BoolVar(&extractStats, "stats", false, "print timing and token statistics")
}

// showProgress reports whether the interactive progress bar should run.
func showProgress() bool {
	return !extractNoProgress && !extractJSON && term.IsTerminal(int(os.Stdout.Fd()))
}

func runExtract(cmd *cobra.Command, args []string) error {
	path := args[0]
	if info, err := os.Stat(path); err != nil {
		return fmt.Errorf("open video: %w", err)
	} else if info.IsDir() {
		return fmt.Errorf("open video: %s is a directory", path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := getApp(ctx, true)
	if err != nil {
		return err
	}
	if err := a.Frames.CheckDependencies(); err != nil {
		logger.Warn("frame extraction unavailable", "error", err)
	}

	var rec *ledger.Recorder
	opts := pipeline.ExtractOptions{
		DurationSeconds: extractDuration,
		OnRun:           func(r *ledger.Recorder) { rec = r },
	}

	var result *models.ExtractionResult
	if showProgress() {
		result, err = RunExtractProgress(ctx, a.Extractor, path, opts)
	} else {
		result, err = a.Extractor.Extract(ctx, path, opts)
	}
	if err != nil {
		if rec != nil {
			return fmt.Errorf("%w\nInspect with: reelfacts runs %s", err, rec.ID())
		}
		return err
	}
	run := rec.Snapshot()
	runID := run.ID

	out := cmd.OutOrStdout()
	if extractJSON {
		payload := struct {
			RunID   string                   `json:"run_id"`
			Result  *models.ExtractionResult `json:"result"`
			Quality *models.QualityReport    `json:"quality,omitempty"`
		}{RunID: runID, Result: result, Quality: run.Quality}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	renderResult(out, defaultTheme, runID, result, run.Quality, run.UsedFallback())

	if extractStats {
		renderStats(out, a.Metrics.Snapshot())
	}
	return nil
}
