// Package scoring computes deterministic quality reports for extraction results.
package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the heuristic thresholds and weights used by Score.
// Values are hand-tuned and exposed so deployments can adjust them without a rebuild.
type Policy struct {
	// Menu expectations
	ExpectedMenuItems  float64 `yaml:"expected_menu_items"`
	MinMenuItems       int     `yaml:"min_menu_items"`
	MinAvgConfidence   float64 `yaml:"min_avg_confidence"`
	FlagUnverifiedMenu bool    `yaml:"flag_unverified_menu"`

	// Restaurant info expectations
	MinDescriptionLen int `yaml:"min_description_len"`

	// Frame expectations
	ExpectedFrames       float64 `yaml:"expected_frames"`
	ExpectedHighPriority float64 `yaml:"expected_high_priority"`
	FlagOutOfRangeFrames bool    `yaml:"flag_out_of_range_frames"`

	// Score assigned when the style matches the built-in default.
	DefaultStyleScore float64 `yaml:"default_style_score"`

	// Rating bands
	GoodThreshold float64 `yaml:"good_threshold"`
	FairThreshold float64 `yaml:"fair_threshold"`

	Weights Weights `yaml:"weights"`
}

// Weights combines the dimension scores into the overall score.
type Weights struct {
	Menu       float64 `yaml:"menu"`
	Restaurant float64 `yaml:"restaurant"`
	Frames     float64 `yaml:"frames"`
	Style      float64 `yaml:"style"`
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ExpectedMenuItems:    5,
		MinMenuItems:         3,
		MinAvgConfidence:     0.6,
		MinDescriptionLen:    20,
		ExpectedFrames:       8,
		ExpectedHighPriority: 3,
		DefaultStyleScore:    0.3,
		GoodThreshold:        0.8,
		FairThreshold:        0.6,
		FlagUnverifiedMenu:   true,
		FlagOutOfRangeFrames: true,
		Weights: Weights{
			Menu:       0.35,
			Restaurant: 0.25,
			Frames:     0.25,
			Style:      0.15,
		},
	}
}

// LoadPolicy overlays a YAML policy file on DefaultPolicy.
// An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read scoring policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse scoring policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("scoring policy %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects policies that would divide by zero or invert the rating bands.
func (p Policy) Validate() error {
	if p.ExpectedMenuItems <= 0 || p.ExpectedFrames <= 0 || p.ExpectedHighPriority <= 0 {
		return fmt.Errorf("expected counts must be positive")
	}
	if p.FairThreshold > p.GoodThreshold {
		return fmt.Errorf("fair_threshold %.2f exceeds good_threshold %.2f", p.FairThreshold, p.GoodThreshold)
	}
	w := p.Weights
	if w.Menu < 0 || w.Restaurant < 0 || w.Frames < 0 || w.Style < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	return nil
}
