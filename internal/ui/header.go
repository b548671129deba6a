package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header is the banner printed when a command starts.
type Header struct {
	Title   string  // e.g., "Trace collector"
	Command string  // e.g., "fdtrace-collect serve --listen :9190"
	Fields  []Field // e.g., {"Directory", "traces"}
	Width   int     // Terminal width for responsive rendering
}

// NewHeader creates a header sized to the terminal.
func NewHeader(title, command string, fields ...Field) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Fields:  fields,
		Width:   GetTerminalWidth(),
	}
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := clampWidth(h.Width)

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command),
	)

	content := top
	if len(h.Fields) > 0 {
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", width-6))
		content = lipgloss.JoinVertical(lipgloss.Left,
			top, divider, strings.Join(renderFields(h.Fields, "  "), "\n"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}
