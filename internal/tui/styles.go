package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agentry-dev/agentry/internal/domain"
)

// Styles holds the dashboard's lipgloss styles.
type Styles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Row      lipgloss.Style
	Selected lipgloss.Style
	Help     lipgloss.Style
	Err      lipgloss.Style

	status map[domain.Status]lipgloss.Style
}

// DefaultStyles returns the default styles.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Header:   lipgloss.NewStyle().Faint(true),
		Row:      lipgloss.NewStyle(),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Help:     lipgloss.NewStyle().Faint(true),
		Err:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		status: map[domain.Status]lipgloss.Style{
			domain.StatusDraft:     lipgloss.NewStyle().Faint(true),
			domain.StatusStopped:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			domain.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
			domain.StatusIdle:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			domain.StatusExited:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			domain.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		},
	}
}

// Status returns the style for a status value.
func (s Styles) Status(status domain.Status) lipgloss.Style {
	if st, ok := s.status[status]; ok {
		return st
	}
	return s.Row
}
