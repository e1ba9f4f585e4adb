package cli

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/models"
	"github.com/raphaelgruber/reelfacts/internal/pipeline"
)

const pollInterval = 200 * time.Millisecond

// Expected step counts, used to scale the progress bar.
const (
	primarySteps  = 9
	fallbackSteps = 5
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Warning:    lipgloss.Color("#FFAF00"), // amber
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers sampling the current run.
type tickMsg time.Time

// extractDoneMsg carries the pipeline outcome.
type extractDoneMsg struct {
	result *models.ExtractionResult
	err    error
}

// progressModel is the bubbletea model for a running extraction.
type progressModel struct {
	current  func() *ledger.Recorder
	run      *models.Run
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(current func() *ledger.Recorder) progressModel {
	return progressModel{
		current: current,
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.progress.Init())
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if rec := m.current(); rec != nil {
			snap := rec.Snapshot()
			m.run = &snap
		}
		return m, tickCmd()

	case extractDoneMsg:
		m.done = true
		m.err = msg.err
		if rec := m.current(); rec != nil {
			snap := rec.Snapshot()
			m.run = &snap
		}
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// percent is the share of expected steps that have finished. It stays below
// 1 until the pipeline reports completion.
func (m progressModel) percent() float64 {
	if m.run == nil {
		return 0
	}
	if m.done {
		return 1
	}
	expected := primarySteps
	if m.run.UsedFallback() {
		expected = fallbackSteps
	}
	finished := 0
	for _, s := range m.run.Steps {
		if s.Status.Terminal() {
			finished++
		}
	}
	return min(float64(finished)/float64(expected), 0.95)
}

// active returns the names of running steps.
func (m progressModel) active() []string {
	if m.run == nil {
		return nil
	}
	var names []string
	for _, s := range m.run.Steps {
		if s.Status == models.StatusRunning {
			names = append(names, s.Name)
		}
	}
	return names
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.run == nil {
		return "Starting extraction...\n"
	}

	label := "[primary]"
	if m.run.UsedFallback() {
		label = "[fallback]"
	}
	status := m.theme.statusStyle().Render(label)
	bar := m.progress.ViewAs(m.percent())
	steps := strings.Join(m.active(), ", ")
	hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, steps, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nCanceling extraction...\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Extraction failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render("✓ Extraction completed") + "\n\n"
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunExtractProgress runs the extraction with an interactive progress bar.
// Ctrl+C cancels the extraction; the canceled run is still persisted.
func RunExtractProgress(ctx context.Context, e *pipeline.Extractor, path string, opts pipeline.ExtractOptions) (*models.ExtractionResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Track this call's runs rather than whatever the extractor started last.
	var current atomic.Pointer[ledger.Recorder]
	onRun := opts.OnRun
	opts.OnRun = func(r *ledger.Recorder) {
		current.Store(r)
		if onRun != nil {
			onRun(r)
		}
	}

	p := tea.NewProgram(newProgressModel(current.Load))
	done := make(chan extractDoneMsg, 1)
	go func() {
		result, err := e.Extract(ctx, path, opts)
		msg := extractDoneMsg{result: result, err: err}
		done <- msg
		p.Send(msg)
	}()

	finalModel, err := p.Run()
	if err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := finalModel.(progressModel); ok && m.quitting {
		cancel()
	}

	// Wait for the pipeline so a canceled run is persisted before returning.
	res := <-done
	return res.result, res.err
}
