package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/reelfacts/internal/analysis"
	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

// runFallback extracts evenly spaced stills locally and sends them to the
// image model in a single combined request. Each section of the answer
// falls back to its default independently.
func (e *Extractor) runFallback(ctx context.Context, rec *ledger.Recorder, videoPath string, opts ExtractOptions) (*models.ExtractionResult, error) {
	duration := e.probe(ctx, rec, videoPath, opts)

	sampleStep := rec.StartStep(ledger.StepSpec{
		Name:  StepSampleFrames,
		Input: map[string]any{"frames": e.cfg.FallbackFrames, "duration_seconds": duration},
	})
	planned := evenlySpacedFrames(duration, e.cfg.FallbackFrames)
	if len(planned) == 0 {
		err := fmt.Errorf("video duration unknown: %w", ErrNoFrames)
		_ = sampleStep.Fail(err)
		return nil, err
	}
	_ = sampleStep.Complete(planned)

	sampled, failures, err := e.materialize(ctx, rec, videoPath, planned)
	if err != nil {
		return nil, err
	}
	if len(sampled) == 0 {
		return nil, fmt.Errorf("%d of %d frames failed: %w", len(failures), len(planned), ErrNoFrames)
	}

	paths := make([]string, len(sampled))
	for i, f := range sampled {
		paths[i] = f.ImagePath
	}

	prompt := fallbackPrompt(len(paths))
	step := rec.StartStep(ledger.StepSpec{
		Name:   StepAnalyzeImages,
		Prompt: prompt,
		Input:  map[string]any{"images": len(paths), "model": e.cfg.Images.ImageModel()},
	})
	raw, err := e.cfg.Images.AnalyzeImages(ctx, paths, prompt)
	if err != nil {
		_ = step.Fail(err)
		return nil, fmt.Errorf("%s: %w", StepAnalyzeImages, err)
	}

	result, warnings := parseFallback(raw, sampled)
	result.VideoDurationSeconds = duration
	result.FrameFailures = failures

	out := stepOutput{Raw: raw, Parsed: result}
	if len(warnings) > 0 {
		for _, w := range warnings[1:] {
			step.Warn(w)
		}
		_ = step.CompleteWithFallback(out, warnings[0])
	} else {
		_ = step.Complete(out)
	}
	return result, nil
}

// parseFallback assembles a result from the combined answer. Sections that
// are missing or malformed are replaced by their defaults and reported in
// the returned warnings.
func parseFallback(raw string, sampled []models.SelectedFrame) (*models.ExtractionResult, []string) {
	result := &models.ExtractionResult{
		Frames:     sampled,
		Menu:       models.MenuExtraction{Items: []models.MenuItem{}},
		Restaurant: models.DefaultRestaurantInfo(),
		Style:      models.DefaultStyleProfile(),
	}

	doc, err := analysis.Decode[fallbackPayload](raw)
	if err != nil {
		return result, []string{"combined answer unparseable, using defaults: " + err.Error()}
	}

	var warnings []string
	warn := func(section string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s section unusable, using default: %v", section, err))
	}

	if info, err := decodeSection[restaurantWire](doc.Restaurant); err != nil {
		warn("restaurant", err)
	} else {
		result.Restaurant = info.toModel()
	}

	// Image-only menus are never verified.
	if menu, err := decodeSection[menuPayload](doc.Menu); err != nil {
		warn("menu", err)
	} else {
		result.Menu = unverifiedMenu(menu.named(), menu.StyleNotes)
	}

	if style, err := decodeSection[styleWire](doc.Style); err != nil {
		warn("style", err)
	} else {
		profile, styleWarnings := style.toModel()
		result.Style = profile
		warnings = append(warnings, styleWarnings...)
	}

	if tags, err := decodeSection[[]fallbackFrameWire](doc.Frames); err != nil {
		warn("frames", err)
	} else {
		result.Frames = tagFrames(sampled, tags)
	}

	return result, warnings
}

func decodeSection[T any](raw json.RawMessage) (T, error) {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		var zero T
		return zero, errors.New("missing")
	}
	return analysis.Decode[T](string(raw))
}

// tagFrames applies per-image tags by index. Untagged frames keep the
// unknown category and medium priority.
func tagFrames(sampled []models.SelectedFrame, tags []fallbackFrameWire) []models.SelectedFrame {
	out := make([]models.SelectedFrame, len(sampled))
	copy(out, sampled)
	for _, t := range tags {
		if t.Index < 0 || t.Index >= len(out) {
			continue
		}
		f := &out[t.Index]
		f.Category = normalizeCategory(t.Category)
		f.Priority = normalizePriority(t.Priority)
		if d := strings.TrimSpace(t.Description); d != "" {
			f.Description = d
		}
	}
	return out
}
