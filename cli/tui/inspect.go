package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/cellsolve/trace"
)

// defaultRows is the evaluation window height before the terminal size
// is known.
const defaultRows = 10

// chromeRows is the space taken by the summary box and help line.
const chromeRows = 20

// InspectModel is a Bubble Tea model showing a run summary above a
// scrollable list of its evaluations.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	cursor   int
	offset   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clamp()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.cursor--
		case key.Matches(msg, keys.Down):
			m.cursor++
		case key.Matches(msg, keys.Top):
			m.cursor = 0
		case key.Matches(msg, keys.Bottom):
			m.cursor = m.count() - 1
		}
		m.clamp()
	}

	return m, nil
}

func (m InspectModel) count() int {
	run, ok := m.data.(*trace.Run)
	if !ok {
		return 0
	}
	return len(run.Evaluations)
}

func (m InspectModel) rows() int {
	if m.height == 0 {
		return defaultRows
	}
	return max(m.height-chromeRows, 3)
}

// clamp keeps the cursor on a row and the row inside the window.
func (m *InspectModel) clamp() {
	n := m.count()
	m.cursor = max(min(m.cursor, n-1), 0)
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if rows := m.rows(); m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectTrace:
		content = m.renderInspectTrace()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("↑/↓ scroll  g/G first/last  q quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectTrace() string {
	run, ok := m.data.(*trace.Run)
	if !ok {
		return "Invalid data type for inspect_trace"
	}
	stats := run.Stats()

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Solve Trace"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Run ID", run.RunID},
		{"Result", stats.Result},
		{"Evaluations", strconv.Itoa(stats.Evaluations)},
		{"Failed", strconv.Itoa(stats.Failed)},
	}
	if stats.StopReason != "" {
		rows = append(rows, []string{"Stop Reason", stats.StopReason})
	}
	if stats.BestObjective != nil {
		rows = append(rows, []string{"Best Objective", formatFloat(*stats.BestObjective)})
	}
	if len(stats.BestPoint) > 0 {
		rows = append(rows, []string{"Best Point", formatVector(stats.BestPoint)})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := ValueStyle.Render(row[1])
		if row[0] == "Result" {
			value = ResultStyle(row[1]).Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	summary := BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, summary, m.renderEvaluations(run))
}

func (m InspectModel) renderEvaluations(run *trace.Run) string {
	if len(run.Evaluations) == 0 {
		return HelpStyle.Render("(no evaluations)")
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("  %-6s %-18s %-6s %-28s %s", "SEQ", "OUTCOME", "CODE", "X", "OUTPUTS")))
	b.WriteString("\n")

	end := min(m.offset+m.rows(), len(run.Evaluations))
	for i := m.offset; i < end; i++ {
		ev := run.Evaluations[i]
		outcome := fmt.Sprintf("%-18s", truncate(ev.Outcome, 18))
		line := fmt.Sprintf("%-6d %s %-6d %-28s %s",
			ev.Seq, ResultStyle(ev.Outcome).Render(outcome), ev.Code,
			truncate(formatVector(ev.X), 28), formatOutputs(ev.Outputs))
		if i == m.cursor {
			b.WriteString(CursorStyle.Render("> ") + line)
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString(HelpStyle.Render(fmt.Sprintf("%d-%d of %d", m.offset+1, end, len(run.Evaluations))))
	return b.String()
}

// keyMap defines key bindings.
type keyMap struct {
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "first"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "last"),
	),
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 8, 64)
}

func formatVector(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'g', 5, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatOutputs(vs []*float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		if v == nil {
			parts[i] = FailedStyle.Render("NaN")
			continue
		}
		parts[i] = strconv.FormatFloat(*v, 'g', 5, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
