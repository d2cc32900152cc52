package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/cellsolve/trace"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsTrace:
		content = m.renderStatsTrace()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsTrace() string {
	data, ok := m.data.(*trace.RunStats)
	if !ok {
		return "Invalid data type for stats_trace"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Trace Statistics"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s   %s %s\n\n",
		LabelStyle.Render("Run:"), ValueStyle.Render(data.RunID),
		LabelStyle.Width(8).Render("Result:"), ResultStyle(data.Result).Render(data.Result)))

	boxes := []string{
		m.renderStatBox("Evaluations", fmt.Sprintf("%d", data.Evaluations), countColor),
		m.renderStatBox("Counted", fmt.Sprintf("%d", data.Counted), feasibleColor),
		m.renderStatBox("Failed", fmt.Sprintf("%d", data.Failed), failedColor),
		m.renderStatBox("NaN Cells", fmt.Sprintf("%d", data.NaNCells), stoppedColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	best := "-"
	if data.BestObjective != nil {
		best = formatFloat(*data.BestObjective)
	}
	color := feasibleColor
	if !data.Feasible {
		color = stoppedColor
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Best Objective", best, color),
		m.renderStatBox("Eval Time (ms)", fmt.Sprintf("%.0f", data.TotalEvalMS), mutedColor),
	))

	return b.String()
}

func (m StatsModel) renderStatBox(label, value string, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
