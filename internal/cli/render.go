package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/reelfacts/internal/metrics"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

func (t Theme) ratingStyle(r models.Rating) lipgloss.Style {
	switch r {
	case models.RatingGood:
		return t.completedStyle()
	case models.RatingFair:
		return lipgloss.NewStyle().Foreground(t.Warning).Bold(true)
	default:
		return t.errorStyle()
	}
}

func (t Theme) headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Underline(true)
}

// renderResult prints the human-readable summary of an extraction.
func renderResult(w io.Writer, t Theme, runID string, r *models.ExtractionResult, report *models.QualityReport, usedFallback bool) {
	info := r.Restaurant
	name := "(name not detected)"
	if info.Name != nil {
		name = *info.Name
	}

	fmt.Fprintf(w, "%s\n", t.headerStyle().Render(name))
	fmt.Fprintf(w, "  %s · %s · %s\n", info.Cuisine, info.PriceTier, info.Ambiance)
	if info.Tagline != "" {
		fmt.Fprintf(w, "  %s\n", t.hintStyle().Render(info.Tagline))
	}
	fmt.Fprintf(w, "  %s\n", info.Description)
	if len(info.Features) > 0 {
		fmt.Fprintf(w, "  Features: %s\n", strings.Join(info.Features, ", "))
	}

	menuTitle := fmt.Sprintf("Menu (%d items", len(r.Menu.Items))
	if r.Menu.Verified {
		menuTitle += ", verified)"
	} else {
		menuTitle += ", unverified)"
	}
	fmt.Fprintf(w, "\n%s\n", t.headerStyle().Render(menuTitle))
	for _, item := range r.Menu.Items {
		price := "     -"
		if item.Price != nil {
			price = fmt.Sprintf("%6.2f", *item.Price)
		}
		flag := ""
		if item.NeedsReview {
			flag = t.hintStyle().Render(" (review)")
		}
		fmt.Fprintf(w, "  %s  %-32s %3.0f%%%s\n", price, item.Name, item.Confidence*100, flag)
	}

	fmt.Fprintf(w, "\n%s\n", t.headerStyle().Render("Style"))
	swatch := func(hex string) string {
		return lipgloss.NewStyle().Background(lipgloss.Color(hex)).Render("  ") + " " + hex
	}
	fmt.Fprintf(w, "  %s, %s, %s\n", r.Style.Theme, r.Style.Mood, r.Style.FontStyle)
	fmt.Fprintf(w, "  primary %s  secondary %s\n", swatch(r.Style.PrimaryColor), swatch(r.Style.SecondaryColor))

	fmt.Fprintf(w, "\n%s\n", t.headerStyle().Render(fmt.Sprintf("Frames (%d)", len(r.Frames))))
	for _, f := range r.Frames {
		fmt.Fprintf(w, "  %7.2fs  %-9s %-6s %s\n", f.Timestamp, f.Category, f.Priority, f.ImagePath)
	}
	for _, failure := range r.FrameFailures {
		fmt.Fprintf(w, "  %s\n", t.errorStyle().Render("✗ "+failure))
	}

	if report != nil {
		fmt.Fprintf(w, "\n%s %s %.2f\n", t.headerStyle().Render("Quality"),
			t.ratingStyle(report.Rating).Render(strings.ToUpper(string(report.Rating))), report.Overall)
		fmt.Fprintf(w, "  menu %.2f · restaurant %.2f · frames %.2f · style %.2f\n",
			report.Scores.Menu, report.Scores.Restaurant, report.Scores.Frames, report.Scores.Style)
		for _, issue := range report.Issues {
			style := t.hintStyle()
			if issue.Severity == models.SeverityCritical {
				style = t.errorStyle()
			}
			fmt.Fprintf(w, "  • %s\n", style.Render(fmt.Sprintf("[%s] %s", issue.Category, issue.Message)))
		}
	}

	footer := "Run " + runID
	if usedFallback {
		footer += " (image fallback)"
	}
	fmt.Fprintf(w, "\n%s\n", t.hintStyle().Render(footer))
}

// renderRunList prints recent runs as a table.
func renderRunList(w io.Writer, runs []models.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}

	fmt.Fprintf(w, "%-36s %-10s %-6s %-8s %-19s %s\n", "ID", "STATUS", "RATING", "FALLBACK", "STARTED", "VIDEO")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, r := range runs {
		fallback := ""
		if r.UsedFallback {
			fallback = "yes"
		}
		fmt.Fprintf(w, "%-36s %-10s %-6s %-8s %-19s %s\n",
			r.ID, r.Status, r.Rating, fallback, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.VideoPath)
	}
}

// renderRun prints one run's metadata and step timeline.
func renderRun(w io.Writer, t Theme, run *models.Run) {
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "  Status: %s\n", run.Status)
	fmt.Fprintf(w, "  Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.EndedAt != nil {
		fmt.Fprintf(w, "  Duration: %s\n", run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	for _, key := range []string{models.MetaVideoPath, models.MetaPreciseModel, models.MetaFastModel, models.MetaImageModel, models.MetaDuration, models.MetaPollCount, models.MetaPrimaryRunID} {
		if v, ok := run.Metadata[key]; ok && v != "" {
			fmt.Fprintf(w, "  %s: %v\n", key, v)
		}
	}
	if run.Error != nil {
		fmt.Fprintf(w, "  %s\n", t.errorStyle().Render("Error: "+*run.Error))
	}
	if run.Quality != nil {
		fmt.Fprintf(w, "  Quality: %s %.2f\n", t.ratingStyle(run.Quality.Rating).Render(string(run.Quality.Rating)), run.Quality.Overall)
	}

	fmt.Fprintf(w, "\nSteps (%d):\n", len(run.Steps))
	for _, s := range run.Steps {
		mark := t.completedStyle().Render("✓")
		switch {
		case s.Status == models.StatusFailed:
			mark = t.errorStyle().Render("✗")
		case s.Status == models.StatusRunning:
			mark = t.statusStyle().Render("…")
		case s.Fallback:
			mark = lipgloss.NewStyle().Foreground(t.Warning).Render("↺")
		}
		tier := ""
		if s.Tier != "" {
			tier = "[" + s.Tier + "]"
		}
		fmt.Fprintf(w, "  %s %-20s %-10s %6dms\n", mark, s.Name, tier, s.DurationMs)
		for _, warning := range s.Warnings {
			fmt.Fprintf(w, "      %s\n", t.hintStyle().Render(warning))
		}
		if s.Error != nil {
			fmt.Fprintf(w, "      %s\n", t.errorStyle().Render(*s.Error))
		}
	}
}

// renderStats prints per-operation timing and token totals.
func renderStats(w io.Writer, snap metrics.Snapshot) {
	fmt.Fprintf(w, "\nStatistics (uptime %.1fs):\n", snap.UptimeSeconds)
	fmt.Fprintf(w, "  %-24s %6s %6s %10s %8s %10s %10s\n", "OPERATION", "COUNT", "ERRORS", "AVG MS", "MAX MS", "TOKENS IN", "TOKENS OUT")
	for _, op := range snap.Operations {
		fmt.Fprintf(w, "  %-24s %6d %6d %10.1f %8d %10s %10s\n",
			op.Name, op.Count, op.Errors, op.AvgTimeMs, op.MaxTimeMs, tokens(op.TotalInputTokens), tokens(op.TotalOutputTokens))
	}
}

func tokens(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}
