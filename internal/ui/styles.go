// Package ui renders the terminal front end of the voice client: connection
// status, the live transcript, an audio-reactive visualizer, recent log
// lines and the single activate/deactivate control.
//
// Layout helpers ([Frame], [Bars], [Wave], [TranscriptLines]) are pure and
// safe to call from tests. [Model] wires them to a session controller as a
// bubbletea program.
package ui

import "github.com/charmbracelet/lipgloss"

// Theme defines the colour scheme.
type Theme struct {
	Primary   lipgloss.Color
	Dim       lipgloss.Color
	User      lipgloss.Color
	Assistant lipgloss.Color
	Error     lipgloss.Color
	Online    lipgloss.Color
	Pending   lipgloss.Color
}

// DefaultTheme is the cyan HUD theme.
var DefaultTheme = Theme{
	Primary:   lipgloss.Color("#22d3ee"),
	Dim:       lipgloss.Color("#6e7681"),
	User:      lipgloss.Color("#818cf8"),
	Assistant: lipgloss.Color("#22d3ee"),
	Error:     lipgloss.Color("#f87171"),
	Online:    lipgloss.Color("#22c55e"),
	Pending:   lipgloss.Color("#eab308"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title     lipgloss.Style
	Label     lipgloss.Style
	Border    lipgloss.Style
	Help      lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Partial   lipgloss.Style
	Error     lipgloss.Style
	Bars      lipgloss.Style
	Status    map[string]lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:    lipgloss.NewStyle().Foreground(t.Primary),
		Help:      lipgloss.NewStyle().Foreground(t.Dim),
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.User),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Assistant),
		Partial:   lipgloss.NewStyle().Faint(true),
		Error:     lipgloss.NewStyle().Foreground(t.Error),
		Bars:      lipgloss.NewStyle().Foreground(t.Primary),
		Status: map[string]lipgloss.Style{
			"idle":       lipgloss.NewStyle().Foreground(t.Dim),
			"connecting": lipgloss.NewStyle().Foreground(t.Pending),
			"listening":  lipgloss.NewStyle().Foreground(t.Online),
			"error":      lipgloss.NewStyle().Foreground(t.Error),
		},
	}
}
