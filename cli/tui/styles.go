// Package tui provides Bubble Tea views of a solve trace.
//
// The TUI is opt-in (--tui) and read-only. It renders the same payloads
// as the table and json output of the trace command.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/cellsolve/trace"
	"github.com/pithecene-io/cellsolve/types"
)

var (
	accentColor   = lipgloss.Color("#0F9D58") // sheet green
	feasibleColor = lipgloss.Color("#22C55E")
	stoppedColor  = lipgloss.Color("#EAB308")
	failedColor   = lipgloss.Color("#DC2626")
	mutedColor    = lipgloss.Color("#71717A")
	countColor    = lipgloss.Color("#0284C7")
	plainColor    = lipgloss.Color("#F4F4F5")
)

var (
	// TitleStyle renders view titles.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)

	// LabelStyle renders the fixed-width labels of the run summary.
	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(16)

	ValueStyle  = lipgloss.NewStyle().Foreground(plainColor)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(countColor)
	CursorStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	HelpStyle   = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	FeasibleStyle = lipgloss.NewStyle().Foreground(feasibleColor)
	StoppedStyle  = lipgloss.NewStyle().Foreground(stoppedColor)
	FailedStyle   = lipgloss.NewStyle().Foreground(failedColor)

	// BoxStyle frames the run summary.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// StatBoxStyle frames one counter of the stats view. Callers set the
	// border color per counter.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	StatLabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(plainColor).Align(lipgloss.Center)
)

// resultStyles maps result and evaluation outcome names to styles. Runs
// that stopped on a limit or were cancelled are not failures.
var resultStyles = map[string]lipgloss.Style{
	types.ResultOptimal.String():               FeasibleStyle,
	types.OutcomeSuccess.String():              FeasibleStyle,
	types.ResultStoppedIter.String():           StoppedStyle,
	types.ResultStoppedTime.String():           StoppedStyle,
	types.ResultStoppedIterInfeasible.String(): StoppedStyle,
	types.ResultStoppedTimeInfeasible.String(): StoppedStyle,
	types.ResultUserCancelled.String():         StoppedStyle,
	types.OutcomeUserAbort.String():            StoppedStyle,
	trace.ResultInProgress:                     StoppedStyle,
	"":                                         ValueStyle,
	"none":                                     ValueStyle,
}

// ResultStyle returns the style for a result or outcome name. Unknown
// names, infeasible runs and bridge failures render as failed.
func ResultStyle(name string) lipgloss.Style {
	if s, ok := resultStyles[name]; ok {
		return s
	}
	return FailedStyle
}
