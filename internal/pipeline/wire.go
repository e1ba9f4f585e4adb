package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/raphaelgruber/reelfacts/internal/frames"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

// stepOutput is what the ledger stores for an analysis step: the raw model
// response next to the value the pipeline used.
type stepOutput struct {
	Raw    string `json:"raw,omitempty"`
	Parsed any    `json:"parsed,omitempty"`
}

var knownCategories = map[string]bool{
	models.CategoryExterior: true,
	models.CategoryInterior: true,
	models.CategoryFood:     true,
	models.CategoryMenu:     true,
	models.CategorySignage:  true,
	models.CategoryAmbiance: true,
	models.CategoryStaff:    true,
	models.CategoryKitchen:  true,
}

func normalizeCategory(s string) string {
	c := strings.ToLower(strings.TrimSpace(s))
	if knownCategories[c] {
		return c
	}
	return models.CategoryUnknown
}

func normalizePriority(s string) models.Priority {
	switch p := models.Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		return p
	}
	return models.PriorityMedium
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Frame selection

type frameWire struct {
	Timestamp   float64 `json:"timestamp"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
}

type framesPayload struct {
	Frames []frameWire `json:"frames"`
}

// toModels keeps timestamps as returned; out-of-range values are left for the scorer to flag.
func (p framesPayload) toModels() []models.SelectedFrame {
	out := make([]models.SelectedFrame, 0, len(p.Frames))
	for _, f := range p.Frames {
		out = append(out, models.SelectedFrame{
			Timestamp:   f.Timestamp,
			Category:    normalizeCategory(f.Category),
			Description: strings.TrimSpace(f.Description),
			Priority:    normalizePriority(f.Priority),
		})
	}
	return out
}

// evenlySpacedFrames covers the whole video when the model's selection is unusable.
func evenlySpacedFrames(duration float64, n int) []models.SelectedFrame {
	ts := frames.SampleTimestamps(duration, n)
	out := make([]models.SelectedFrame, len(ts))
	for i, t := range ts {
		out[i] = models.SelectedFrame{
			Timestamp:   t,
			Category:    models.CategoryUnknown,
			Description: fmt.Sprintf("Evenly spaced sample %d of %d", i+1, len(ts)),
			Priority:    models.PriorityMedium,
		}
	}
	return out
}

// openingFrame stands in for a selection when the duration is unknown.
func openingFrame() models.SelectedFrame {
	return models.SelectedFrame{
		Timestamp:   0,
		Category:    models.CategoryUnknown,
		Description: "Opening frame (video duration unknown)",
		Priority:    models.PriorityMedium,
	}
}

// Menu

// price accepts numbers, numeric strings with currency symbols, and null.
type price struct {
	v *float64
}

var priceJunk = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

func (p *price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		p.v = nil
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		p.v = &f
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	s = priceJunk.Replace(s)
	if s == "" {
		p.v = nil
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// An unreadable price is not worth discarding the whole menu.
		p.v = nil
		return nil
	}
	p.v = &f
	return nil
}

func (p price) MarshalJSON() ([]byte, error) {
	if p.v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*p.v)
}

type menuItemWire struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Price       price    `json:"price"`
	DietaryTags []string `json:"dietary_tags,omitempty"`
	Source      string   `json:"source,omitempty"`
	Timestamp   *float64 `json:"timestamp,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	NeedsReview *bool    `json:"needs_review,omitempty"`
}

type menuPayload struct {
	Items      []menuItemWire `json:"items"`
	StyleNotes string         `json:"style_notes,omitempty"`
}

// named drops items without a name.
func (p menuPayload) named() []menuItemWire {
	out := make([]menuItemWire, 0, len(p.Items))
	for _, it := range p.Items {
		if strings.TrimSpace(it.Name) != "" {
			out = append(out, it)
		}
	}
	return out
}

func (w menuItemWire) base() models.MenuItem {
	tags := w.DietaryTags
	if tags == nil {
		tags = []string{}
	}
	return models.MenuItem{
		Name:        strings.TrimSpace(w.Name),
		Description: strings.TrimSpace(w.Description),
		Category:    strings.TrimSpace(w.Category),
		Price:       w.Price.v,
		DietaryTags: tags,
	}
}

// unverifiedMenu marks every item with the default confidence and for review.
func unverifiedMenu(items []menuItemWire, notes string) models.MenuExtraction {
	out := make([]models.MenuItem, 0, len(items))
	for _, w := range items {
		item := w.base()
		item.Confidence = models.DefaultMenuConfidence
		item.NeedsReview = true
		out = append(out, item)
	}
	return models.MenuExtraction{Items: out, Verified: false, StyleNotes: notes}
}

// verifiedMenu converts pass-2 output. Items without a confidence score get the
// default and are flagged for review.
func verifiedMenu(items []menuItemWire, notes string) models.MenuExtraction {
	out := make([]models.MenuItem, 0, len(items))
	for _, w := range items {
		item := w.base()
		if w.Confidence != nil {
			item.Confidence = clamp01(*w.Confidence)
		} else {
			item.Confidence = models.DefaultMenuConfidence
			item.NeedsReview = true
		}
		if w.NeedsReview != nil && *w.NeedsReview {
			item.NeedsReview = true
		}
		out = append(out, item)
	}
	return models.MenuExtraction{Items: out, Verified: true, StyleNotes: notes}
}

// Restaurant info

type restaurantWire struct {
	Name        *string            `json:"name"`
	Cuisine     string             `json:"cuisine"`
	Description string             `json:"description"`
	Tagline     string             `json:"tagline"`
	Ambiance    string             `json:"ambiance"`
	PriceTier   string             `json:"price_tier"`
	Features    []string           `json:"features"`
	Confidence  map[string]float64 `json:"confidence"`
}

// toModel overlays the returned fields on the neutral default so the record is always complete.
func (w restaurantWire) toModel() models.RestaurantInfo {
	info := models.DefaultRestaurantInfo()
	if w.Name != nil {
		if name := strings.TrimSpace(*w.Name); name != "" {
			info.Name = &name
		}
	}
	setIf(&info.Cuisine, w.Cuisine)
	setIf(&info.Description, w.Description)
	setIf(&info.Tagline, w.Tagline)
	setIf(&info.Ambiance, strings.ToLower(w.Ambiance))
	setIf(&info.PriceTier, w.PriceTier)
	if w.Features != nil {
		info.Features = w.Features
	}
	if len(w.Confidence) > 0 {
		info.Confidence = make(map[string]float64, len(w.Confidence))
		for k, v := range w.Confidence {
			info.Confidence[k] = clamp01(v)
		}
	}
	return info
}

// Style

type styleWire struct {
	Theme          string `json:"theme"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	Mood           string `json:"mood"`
	FontStyle      string `json:"font_style"`
	DesignNotes    string `json:"design_notes"`
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// toModel fills missing or invalid fields from the default profile and
// reports which fields were replaced.
func (w styleWire) toModel() (models.StyleProfile, []string) {
	style := models.DefaultStyleProfile()
	var warnings []string

	setIf(&style.Theme, strings.ToLower(w.Theme))
	setIf(&style.Mood, strings.ToLower(w.Mood))
	setIf(&style.FontStyle, strings.ToLower(w.FontStyle))
	style.DesignNotes = strings.TrimSpace(w.DesignNotes)

	for _, c := range []struct {
		field string
		in    string
		out   *string
	}{
		{"primary_color", w.PrimaryColor, &style.PrimaryColor},
		{"secondary_color", w.SecondaryColor, &style.SecondaryColor},
	} {
		v := strings.TrimSpace(c.in)
		switch {
		case v == "":
		case hexColor.MatchString(v):
			*c.out = strings.ToLower(v)
		default:
			warnings = append(warnings, fmt.Sprintf("%s %q is not a hex color, using %s", c.field, v, *c.out))
		}
	}
	return style, warnings
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Fallback

// fallbackPayload is the combined document returned by the image-based fallback.
// Sections are decoded independently so one bad section does not discard the rest.
type fallbackPayload struct {
	Restaurant json.RawMessage `json:"restaurant"`
	Menu       json.RawMessage `json:"menu"`
	Style      json.RawMessage `json:"style"`
	Frames     json.RawMessage `json:"frames"`
}

type fallbackFrameWire struct {
	Index       int    `json:"index"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}
