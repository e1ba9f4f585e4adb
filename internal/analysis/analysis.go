// Package analysis talks to the remote models that turn videos and frames into text.
package analysis

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/reelfacts/internal/media"
	"github.com/raphaelgruber/reelfacts/internal/metrics"
)

// Tier selects a model variant.
type Tier string

const (
	// TierPrecise is the higher-fidelity, slower model.
	TierPrecise Tier = "precise"
	// TierFast is the cheaper, faster model.
	TierFast Tier = "fast"
)

// Op returns the metrics operation name for calls on this tier.
func (t Tier) Op() string {
	if t == TierFast {
		return metrics.OpAnalyzeFast
	}
	return metrics.OpAnalyzePrecise
}

// Analyzer runs a prompt against uploaded media.
// Implementations do not retry; callers own retry and fallback policy.
type Analyzer interface {
	Analyze(ctx context.Context, h media.Handle, prompt string, tier Tier) (string, error)
	ModelFor(tier Tier) string
}

// ImageAnalyzer runs one prompt over a set of still images.
type ImageAnalyzer interface {
	AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error)
	ImageModel() string
}

// readImage loads an image file and guesses its MIME type from the extension.
func readImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read image %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}
