package models

// Severity classifies a quality issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Rating is the coarse quality verdict for a run.
type Rating string

const (
	RatingGood Rating = "good"
	RatingFair Rating = "fair"
	RatingPoor Rating = "poor"
)

// Issue categories.
const (
	IssueMenu       = "menu"
	IssueRestaurant = "restaurant"
	IssueFrames     = "frames"
	IssueStyle      = "style"
)

// Issue is one finding of the quality scorer.
type Issue struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
}

// DimensionScores holds per-dimension scores in [0,1].
type DimensionScores struct {
	Menu       float64 `json:"menu"`
	Restaurant float64 `json:"restaurant"`
	Frames     float64 `json:"frames"`
	Style      float64 `json:"style"`
}

// QualityReport summarizes completeness and confidence of a result.
type QualityReport struct {
	Scores  DimensionScores `json:"scores"`
	Overall float64         `json:"overall"`
	Issues  []Issue         `json:"issues"`
	Rating  Rating          `json:"rating"`
}

// HasCritical reports whether any issue is critical.
func (q QualityReport) HasCritical() bool {
	for _, issue := range q.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
