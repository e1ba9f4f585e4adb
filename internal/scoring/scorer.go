package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/raphaelgruber/reelfacts/internal/models"
)

// Score computes the quality report for a result. It has no side effects:
// the same result and policy always yield the same report.
func Score(result *models.ExtractionResult, p Policy) models.QualityReport {
	if result == nil {
		result = &models.ExtractionResult{}
	}

	var issues []models.Issue

	menu, menuIssues := scoreMenu(result.Menu, p)
	issues = append(issues, menuIssues...)

	info, infoIssues := scoreRestaurant(result.Restaurant, p)
	issues = append(issues, infoIssues...)

	frames, frameIssues := scoreFrames(result.Frames, result.VideoDurationSeconds, p)
	issues = append(issues, frameIssues...)

	style, styleIssues := scoreStyle(result.Style, p)
	issues = append(issues, styleIssues...)

	w := p.Weights
	overall := w.Menu*menu + w.Restaurant*info + w.Frames*frames + w.Style*style

	if issues == nil {
		issues = []models.Issue{}
	}

	return models.QualityReport{
		Scores: models.DimensionScores{
			Menu:       menu,
			Restaurant: info,
			Frames:     frames,
			Style:      style,
		},
		Overall: overall,
		Issues:  issues,
		Rating:  Rate(overall, issues, p),
	}
}

// Rate derives the rating. Any critical issue forces poor regardless of the score.
func Rate(overall float64, issues []models.Issue, p Policy) models.Rating {
	for _, issue := range issues {
		if issue.Severity == models.SeverityCritical {
			return models.RatingPoor
		}
	}
	switch {
	case overall >= p.GoodThreshold && len(issues) == 0:
		return models.RatingGood
	case overall >= p.FairThreshold:
		return models.RatingFair
	default:
		return models.RatingPoor
	}
}

func scoreMenu(menu models.MenuExtraction, p Policy) (float64, []models.Issue) {
	count := len(menu.Items)

	var needsReview int
	var confSum float64
	for _, item := range menu.Items {
		if item.NeedsReview {
			needsReview++
		}
		confSum += item.Confidence
	}

	var avgConf float64
	if count > 0 {
		avgConf = confSum / float64(count)
	}

	score := 0.4*math.Min(1, float64(count)/p.ExpectedMenuItems) +
		0.3*(1-float64(needsReview)/float64(max(count, 1))) +
		0.3*avgConf

	var issues []models.Issue
	switch {
	case count == 0:
		issues = append(issues, critical(models.IssueMenu, "no menu items extracted"))
	case count < p.MinMenuItems:
		issues = append(issues, warning(models.IssueMenu, fmt.Sprintf("only %d menu items extracted", count)))
	}
	if count > 0 && avgConf < p.MinAvgConfidence {
		issues = append(issues, warning(models.IssueMenu, fmt.Sprintf("average menu confidence %.2f is low", avgConf)))
	}
	if count > 0 && !menu.Verified && p.FlagUnverifiedMenu {
		issues = append(issues, warning(models.IssueMenu, "menu items were not verified"))
	}

	return score, issues
}

func scoreRestaurant(info models.RestaurantInfo, p Policy) (float64, []models.Issue) {
	hasName := info.Name != nil && strings.TrimSpace(*info.Name) != ""
	cuisine := strings.TrimSpace(info.Cuisine)
	specificCuisine := cuisine != "" && cuisine != models.GenericCuisine
	richDescription := len(strings.TrimSpace(info.Description)) > p.MinDescriptionLen

	score := 0.4*boolScore(hasName) + 0.3*boolScore(specificCuisine) + 0.3*boolScore(richDescription)

	var issues []models.Issue
	if !hasName {
		issues = append(issues, warning(models.IssueRestaurant, "restaurant name not detected"))
	}
	if !specificCuisine {
		issues = append(issues, warning(models.IssueRestaurant, "cuisine type not detected"))
	}
	return score, issues
}

func scoreFrames(frames []models.SelectedFrame, duration float64, p Policy) (float64, []models.Issue) {
	tags := make(map[string]bool)
	var high, outOfRange int
	for _, f := range frames {
		tags[f.Category] = true
		if f.Priority == models.PriorityHigh {
			high++
		}
		if duration > 0 && (f.Timestamp < 0 || f.Timestamp > duration) {
			outOfRange++
		}
	}

	score := 0.3*math.Min(1, float64(len(frames))/p.ExpectedFrames) +
		0.2*boolScore(tags[models.CategoryFood]) +
		0.15*boolScore(tags[models.CategoryExterior]) +
		0.15*boolScore(tags[models.CategoryInterior]) +
		0.2*math.Min(1, float64(high)/p.ExpectedHighPriority)

	var issues []models.Issue
	if len(frames) == 0 {
		issues = append(issues, critical(models.IssueFrames, "no frames extracted"))
		return score, issues
	}
	if !tags[models.CategoryFood] {
		issues = append(issues, warning(models.IssueFrames, "no food shot selected"))
	}
	if !tags[models.CategoryExterior] {
		issues = append(issues, warning(models.IssueFrames, "no exterior shot selected"))
	}
	if !tags[models.CategoryInterior] {
		issues = append(issues, warning(models.IssueFrames, "no interior shot selected"))
	}
	if outOfRange > 0 && p.FlagOutOfRangeFrames {
		issues = append(issues, warning(models.IssueFrames, fmt.Sprintf("%d frame timestamps outside video duration", outOfRange)))
	}
	return score, issues
}

func scoreStyle(style models.StyleProfile, p Policy) (float64, []models.Issue) {
	if style.IsDefault() {
		return p.DefaultStyleScore, []models.Issue{warning(models.IssueStyle, "no brand style detected")}
	}
	return 1, nil
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func critical(category, msg string) models.Issue {
	return models.Issue{Severity: models.SeverityCritical, Category: category, Message: msg}
}

func warning(category, msg string) models.Issue {
	return models.Issue{Severity: models.SeverityWarning, Category: category, Message: msg}
}
