package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles are the lipgloss styles used for install output.
type Styles struct {
	Added   lipgloss.Style
	Removed lipgloss.Style
	Changed lipgloss.Style
	Package lipgloss.Style
	Version lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

var (
	green  = lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"}
	red    = lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}
	yellow = lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"}
	blue   = lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}
	gray   = lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"}
)

// NewStyles builds styles bound to w. With color false every style renders
// plain text.
func NewStyles(w io.Writer, color bool) Styles {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return Styles{
		Added:   r.NewStyle().Foreground(green).Bold(true),
		Removed: r.NewStyle().Foreground(red).Bold(true),
		Changed: r.NewStyle().Foreground(yellow).Bold(true),
		Package: r.NewStyle().Foreground(blue),
		Version: r.NewStyle().Foreground(gray),
		Muted:   r.NewStyle().Foreground(gray).Italic(true),
		Warning: r.NewStyle().Foreground(yellow),
		Error:   r.NewStyle().Foreground(red).Bold(true),
	}
}
