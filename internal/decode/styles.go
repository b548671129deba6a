package decode

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Colour palette for decoder output
var (
	HeaderColor  = lipgloss.Color("#7D56F4") // Purple - section headers
	OpcodeColor  = lipgloss.Color("#43BF6D") // Green - packet mnemonics
	RegColor     = lipgloss.Color("#5FAFFF") // Blue - register names
	AddressColor = lipgloss.Color("#FFA500") // Orange - resolved addresses
	WarningColor = lipgloss.Color("#FF5555") // Red - diagnostics
	MutedColor   = lipgloss.Color("#626262") // Gray - raw dwords
)

type styles struct {
	header  lipgloss.Style
	section lipgloss.Style
	opcode  lipgloss.Style
	reg     lipgloss.Style
	addr    lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
	draw    lipgloss.Style
}

func newStyles(out io.Writer, mode ColorMode) styles {
	r := lipgloss.NewRenderer(out)
	switch mode {
	case ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	default:
		if !isTerminal(out) {
			r.SetColorProfile(termenv.Ascii)
		}
	}

	return styles{
		header:  r.NewStyle().Foreground(HeaderColor).Bold(true),
		section: r.NewStyle().Foreground(HeaderColor),
		opcode:  r.NewStyle().Foreground(OpcodeColor).Bold(true),
		reg:     r.NewStyle().Foreground(RegColor),
		addr:    r.NewStyle().Foreground(AddressColor),
		warn:    r.NewStyle().Foreground(WarningColor).Bold(true),
		muted:   r.NewStyle().Foreground(MutedColor),
		draw:    r.NewStyle().Foreground(OpcodeColor).Bold(true).Underline(true),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
