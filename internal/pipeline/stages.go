package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/reelfacts/internal/analysis"
	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/media"
	"github.com/raphaelgruber/reelfacts/internal/metrics"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

// runPrimary uploads the video once and runs every stage against it.
// Frame selection, the menu passes and the info→style chain run concurrently.
// A remote failure in any stage cancels the others and fails the run.
func (e *Extractor) runPrimary(ctx context.Context, rec *ledger.Recorder, videoPath string, opts ExtractOptions) (*models.ExtractionResult, error) {
	duration := e.probe(ctx, rec, videoPath, opts)

	h, err := e.upload(ctx, rec, videoPath)
	if err != nil {
		return nil, err
	}
	defer media.Release(context.WithoutCancel(ctx), e.cfg.Remote, h, rec.Logger())

	var (
		selected []models.SelectedFrame
		menu     models.MenuExtraction
		info     models.RestaurantInfo
		style    models.StyleProfile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		selected, err = e.selectFrames(gctx, rec, h, duration)
		return err
	})
	g.Go(func() error {
		var err error
		menu, err = e.extractMenu(gctx, rec, h)
		return err
	})
	g.Go(func() error {
		var err error
		if info, err = e.extractInfo(gctx, rec, h); err != nil {
			return err
		}
		style, err = e.extractStyle(gctx, rec, h, info)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	materialized, failures, err := e.materialize(ctx, rec, videoPath, selected)
	if err != nil {
		return nil, err
	}

	return &models.ExtractionResult{
		Frames:               materialized,
		Menu:                 menu,
		Restaurant:           info,
		Style:                style,
		VideoDurationSeconds: duration,
		FrameFailures:        failures,
	}, nil
}

// analyze starts a step, runs prompt against the uploaded media and returns
// the raw response. On error the step is already failed.
func (e *Extractor) analyze(ctx context.Context, rec *ledger.Recorder, h media.Handle, name, prompt string, tier analysis.Tier, input map[string]any) (string, *ledger.StepRecorder, error) {
	if input == nil {
		input = map[string]any{}
	}
	input["media"] = h.Name
	input["model"] = e.cfg.Analyzer.ModelFor(tier)

	step := rec.StartStep(ledger.StepSpec{Name: name, Prompt: prompt, Tier: string(tier), Input: input})
	raw, err := e.cfg.Analyzer.Analyze(ctx, h, prompt, tier)
	if err != nil {
		_ = step.Fail(err)
		return "", step, fmt.Errorf("%s: %w", name, err)
	}
	return raw, step, nil
}

// selectFrames asks for representative moments. An unparseable or empty
// answer is replaced by evenly spaced frames.
func (e *Extractor) selectFrames(ctx context.Context, rec *ledger.Recorder, h media.Handle, duration float64) ([]models.SelectedFrame, error) {
	raw, step, err := e.analyze(ctx, rec, h, StepSelectFrames, selectFramesPrompt(duration), analysis.TierPrecise,
		map[string]any{"duration_seconds": duration})
	if err != nil {
		return nil, err
	}

	payload, perr := analysis.Decode[framesPayload](raw)
	if perr == nil {
		if selected := payload.toModels(); len(selected) > 0 {
			_ = step.Complete(stepOutput{Raw: raw, Parsed: selected})
			return selected, nil
		}
		perr = errors.New("no frames proposed")
	}

	selected := evenlySpacedFrames(duration, FallbackFrameCount)
	if len(selected) == 0 {
		selected = []models.SelectedFrame{openingFrame()}
		_ = step.CompleteWithFallback(stepOutput{Raw: raw, Parsed: selected},
			fmt.Sprintf("frame selection unusable and video duration unknown, using the opening frame: %v", perr))
		return selected, nil
	}
	_ = step.CompleteWithFallback(stepOutput{Raw: raw, Parsed: selected},
		fmt.Sprintf("frame selection unusable, using %d evenly spaced frames: %v", len(selected), perr))
	return selected, nil
}

// extractMenu enumerates menu items, then verifies them in a second pass.
func (e *Extractor) extractMenu(ctx context.Context, rec *ledger.Recorder, h media.Handle) (models.MenuExtraction, error) {
	raw, step, err := e.analyze(ctx, rec, h, StepMenuEnumerate, menuEnumeratePrompt, analysis.TierPrecise, nil)
	if err != nil {
		return models.MenuExtraction{}, err
	}

	draft, perr := analysis.Decode[menuPayload](raw)
	if perr != nil {
		menu := models.MenuExtraction{Items: []models.MenuItem{}}
		_ = step.CompleteWithFallback(stepOutput{Raw: raw, Parsed: menu}, "menu enumeration unparseable: "+perr.Error())
		return menu, nil
	}
	items := draft.named()
	_ = step.Complete(stepOutput{Raw: raw, Parsed: menuPayload{Items: items, StyleNotes: draft.StyleNotes}})

	// Nothing to verify: an empty menu is a confirmed answer.
	if len(items) == 0 {
		return models.MenuExtraction{Items: []models.MenuItem{}, Verified: true, StyleNotes: draft.StyleNotes}, nil
	}
	return e.verifyMenu(ctx, rec, h, items, draft.StyleNotes)
}

// verifyMenu re-checks the draft. Any failure here keeps the draft items at
// the default confidence, except cancellation and fatal API errors.
func (e *Extractor) verifyMenu(ctx context.Context, rec *ledger.Recorder, h media.Handle, items []menuItemWire, notes string) (models.MenuExtraction, error) {
	unverified := unverifiedMenu(items, notes)

	raw, step, err := e.analyze(ctx, rec, h, StepMenuVerify, menuVerifyPrompt(items), analysis.TierPrecise,
		map[string]any{"draft_items": len(items)})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, analysis.ErrFatalAPI) {
			return models.MenuExtraction{}, err
		}
		rec.Logger().Warn("menu verification failed, keeping unverified items", "items", len(items), "error", err)
		return unverified, nil
	}

	verified, perr := analysis.Decode[menuPayload](raw)
	if perr == nil && len(verified.named()) == 0 {
		perr = errors.New("verification returned no items")
	}
	if perr != nil {
		_ = step.CompleteWithFallback(stepOutput{Raw: raw, Parsed: unverified},
			"menu verification unusable, keeping unverified items: "+perr.Error())
		return unverified, nil
	}

	if verified.StyleNotes != "" {
		notes = verified.StyleNotes
	}
	menu := verifiedMenu(verified.named(), notes)
	_ = step.Complete(stepOutput{Raw: raw, Parsed: menu})
	return menu, nil
}

// extractInfo describes the restaurant. An unparseable answer yields the default record.
func (e *Extractor) extractInfo(ctx context.Context, rec *ledger.Recorder, h media.Handle) (models.RestaurantInfo, error) {
	raw, step, err := e.analyze(ctx, rec, h, StepRestaurantInfo, restaurantInfoPrompt, analysis.TierPrecise, nil)
	if err != nil {
		return models.RestaurantInfo{}, err
	}

	payload, perr := analysis.Decode[restaurantWire](raw)
	if perr != nil {
		info := models.DefaultRestaurantInfo()
		_ = step.CompleteWithFallback(stepOutput{Raw: raw, Parsed: info}, "restaurant info unparseable: "+perr.Error())
		return info, nil
	}

	info := payload.toModel()
	_ = step.Complete(stepOutput{Raw: raw, Parsed: info})
	return info, nil
}

// extractStyle derives the visual identity on the fast tier, using the
// restaurant info as context.
func (e *Extractor) extractStyle(ctx context.Context, rec *ledger.Recorder, h media.Handle, info models.RestaurantInfo) (models.StyleProfile, error) {
	raw, step, err := e.analyze(ctx, rec, h, StepStyle, stylePrompt(info), analysis.TierFast,
		map[string]any{"cuisine": info.Cuisine, "ambiance": info.Ambiance})
	if err != nil {
		return models.StyleProfile{}, err
	}

	payload, perr := analysis.Decode[styleWire](raw)
	if perr != nil {
		style := models.DefaultStyleProfile()
		_ = step.CompleteWithFallback(stepOutput{Raw: raw, Parsed: style}, "style unparseable: "+perr.Error())
		return style, nil
	}

	style, warnings := payload.toModel()
	for _, w := range warnings {
		step.Warn(w)
	}
	_ = step.Complete(stepOutput{Raw: raw, Parsed: style})
	return style, nil
}

// materialize extracts a still for every selected frame with a bounded
// worker pool. Frames that fail are dropped and listed in the returned
// failures; order of the survivors is preserved.
func (e *Extractor) materialize(ctx context.Context, rec *ledger.Recorder, videoPath string, selected []models.SelectedFrame) ([]models.SelectedFrame, []string, error) {
	step := rec.StartStep(ledger.StepSpec{
		Name:  StepMaterialize,
		Input: map[string]any{"frames": len(selected), "workers": e.cfg.FrameWorkers},
	})

	paths := make([]string, len(selected))
	errs := make([]error, len(selected))

	workChan := make(chan int)
	var wg sync.WaitGroup
	for range min(e.cfg.FrameWorkers, max(len(selected), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				start := time.Now()
				path, err := e.cfg.Frames.ExtractFrameAt(ctx, videoPath, selected[i].Timestamp)
				if err != nil {
					e.cfg.Metrics.RecordError(metrics.OpFrameExtract, time.Since(start))
					errs[i] = err
					continue
				}
				e.cfg.Metrics.RecordTiming(metrics.OpFrameExtract, time.Since(start))
				paths[i] = path
			}
		}()
	}

sendLoop:
	for i := range selected {
		select {
		case workChan <- i:
		case <-ctx.Done():
			break sendLoop
		}
	}
	close(workChan)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		_ = step.Fail(err)
		return nil, nil, err
	}

	out := make([]models.SelectedFrame, 0, len(selected))
	var failures []string
	for i, f := range selected {
		if errs[i] != nil {
			msg := fmt.Sprintf("frame at %.2fs: %v", f.Timestamp, errs[i])
			failures = append(failures, msg)
			step.Warn(msg)
			continue
		}
		f.ImagePath = paths[i]
		out = append(out, f)
	}

	_ = step.Complete(map[string]any{"extracted": len(out), "failed": len(failures)})
	return out, failures, nil
}
