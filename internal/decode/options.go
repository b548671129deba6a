package decode

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultMaxDepth bounds indirect-buffer nesting.
const DefaultMaxDepth = 8

// ColorMode selects whether the listing is colourised.
type ColorMode int

// Colour modes.
const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

func (m ColorMode) String() string {
	switch m {
	case ColorAlways:
		return "always"
	case ColorNever:
		return "never"
	default:
		return "auto"
	}
}

// ParseColorMode parses "auto", "always" or "never".
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ColorAuto, nil
	case "always", "on", "true":
		return ColorAlways, nil
	case "never", "off", "false":
		return ColorNever, nil
	}
	return ColorAuto, fmt.Errorf("invalid color mode %q (expected auto, always or never)", s)
}

// Options configures a Decoder.
type Options struct {
	// Out receives the listing. Defaults to os.Stdout.
	Out io.Writer

	// Verbose prints the raw dwords of every packet and buffer dumps.
	Verbose bool

	// Summary suppresses per-register output, keeping draws, indirect
	// buffer traversal and address resolution.
	Summary bool

	// DumpShaders writes shader and program binaries to numbered files in
	// ShaderDir.
	DumpShaders bool
	ShaderDir   string

	Color ColorMode

	// MaxDepth bounds indirect-buffer nesting. Zero means DefaultMaxDepth.
	MaxDepth int

	// GPUID selects the register database before any GPU_ID section is
	// seen. Zero leaves registers unnamed until then.
	GPUID uint32
}

func (o Options) withDefaults() Options {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.DumpShaders && o.ShaderDir == "" {
		o.ShaderDir = "."
	}
	return o
}
