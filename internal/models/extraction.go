package models

// Priority ranks a selected frame.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Frame category tags.
const (
	CategoryExterior = "exterior"
	CategoryInterior = "interior"
	CategoryFood     = "food"
	CategoryMenu     = "menu"
	CategorySignage  = "signage"
	CategoryAmbiance = "ambiance"
	CategoryStaff    = "staff"
	CategoryKitchen  = "kitchen"
	CategoryUnknown  = "unknown"
)

// DefaultMenuConfidence is assigned to items that did not pass verification.
const DefaultMenuConfidence = 0.7

// ExtractionResult holds the assembled facts for one run.
type ExtractionResult struct {
	Frames               []SelectedFrame `json:"frames"`
	Menu                 MenuExtraction  `json:"menu"`
	Restaurant           RestaurantInfo  `json:"restaurant"`
	Style                StyleProfile    `json:"style"`
	VideoDurationSeconds float64         `json:"video_duration_seconds,omitempty"`
	FrameFailures        []string        `json:"frame_failures,omitempty"`
}

// SelectedFrame is a representative moment in the video.
type SelectedFrame struct {
	Timestamp   float64  `json:"timestamp"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	ImagePath   string   `json:"image_path,omitempty"`
}

// MenuItem is one dish or drink found in the video.
type MenuItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Price       *float64 `json:"price"`
	DietaryTags []string `json:"dietary_tags,omitempty"`
	Confidence  float64  `json:"confidence"`
	NeedsReview bool     `json:"needs_review"`
}

// MenuExtraction is the outcome of the two-pass menu stage.
type MenuExtraction struct {
	Items      []MenuItem `json:"items"`
	Verified   bool       `json:"verified"`
	StyleNotes string     `json:"style_notes,omitempty"`
}

// RestaurantInfo describes the business identity.
type RestaurantInfo struct {
	Name        *string            `json:"name"`
	Cuisine     string             `json:"cuisine"`
	Description string             `json:"description"`
	Tagline     string             `json:"tagline"`
	Ambiance    string             `json:"ambiance"`
	PriceTier   string             `json:"price_tier"`
	Features    []string           `json:"features"`
	Confidence  map[string]float64 `json:"confidence"`
}

// GenericCuisine is the cuisine label used when none was detected.
const GenericCuisine = "Restaurant"

// DefaultRestaurantInfo is the neutral record used when extraction yields nothing usable.
func DefaultRestaurantInfo() RestaurantInfo {
	return RestaurantInfo{
		Cuisine:     GenericCuisine,
		Description: "A local restaurant.",
		Tagline:     "Good food, good company.",
		Ambiance:    "casual",
		PriceTier:   "$$",
		Features:    []string{},
		Confidence:  map[string]float64{"name": 0},
	}
}

// StyleProfile is the visual identity derived from the video.
type StyleProfile struct {
	Theme          string `json:"theme"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	Mood           string `json:"mood"`
	FontStyle      string `json:"font_style"`
	DesignNotes    string `json:"design_notes,omitempty"`
}

// DefaultStyleProfile is substituted when style extraction yields nothing usable.
func DefaultStyleProfile() StyleProfile {
	return StyleProfile{
		Theme:          "modern",
		PrimaryColor:   "#2563eb",
		SecondaryColor: "#f59e0b",
		Mood:           "warm",
		FontStyle:      "sans-serif",
	}
}

// IsDefault reports whether the style tuple equals the default profile.
// Design notes are free text and do not participate.
func (s StyleProfile) IsDefault() bool {
	d := DefaultStyleProfile()
	return s.Theme == d.Theme &&
		s.PrimaryColor == d.PrimaryColor &&
		s.SecondaryColor == d.SecondaryColor &&
		s.Mood == d.Mood &&
		s.FontStyle == d.FontStyle
}
