package capture

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by OptionsFromEnv.
const (
	EnvSafe      = "FDTRACE_SAFE"
	EnvGPUID     = "FDTRACE_GPU_ID"
	EnvGmemSize  = "FDTRACE_GMEM_SIZE"
	EnvOutputDir = "FDTRACE_OUTPUT_DIR"
	EnvSink      = "FDTRACE_SINK"
)

// DefaultSafePause is the delay inserted around submissions in safe mode.
const DefaultSafePause = 10 * time.Millisecond

// Options configures a capture Session.
type Options struct {
	// Safe syncs the sink after every section and pauses around
	// submissions, so a trace survives the process crashing mid-capture.
	Safe      bool
	SafePause time.Duration

	// EmulateGPUID, when non-zero, replaces the gpu id reported by the
	// kernel and suppresses real submissions.
	EmulateGPUID uint32

	// GmemSize, when non-zero, replaces the reported gmem size.
	GmemSize uint32

	// OutputDir receives trace files when SinkURL is empty.
	OutputDir string

	// SinkURL streams sections to a collector instead of local files.
	SinkURL string

	// DefaultName names the trace opened when sections are emitted before
	// any test has started.
	DefaultName string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		SafePause:   DefaultSafePause,
		OutputDir:   ".",
		DefaultName: "trace",
	}
}

// WithEnv returns o with any variables present in lookup applied.
func (o Options) WithEnv(lookup func(string) (string, bool)) (Options, error) {
	if v, ok := lookup(EnvSafe); ok && v != "" {
		safe, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("invalid %s: %w", EnvSafe, err)
		}
		o.Safe = safe
	}
	if v, ok := lookup(EnvGPUID); ok && v != "" {
		id, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return o, fmt.Errorf("invalid %s: %w", EnvGPUID, err)
		}
		o.EmulateGPUID = uint32(id)
	}
	if v, ok := lookup(EnvGmemSize); ok && v != "" {
		size, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return o, fmt.Errorf("invalid %s: %w", EnvGmemSize, err)
		}
		o.GmemSize = uint32(size)
	}
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		o.OutputDir = v
	}
	if v, ok := lookup(EnvSink); ok && v != "" {
		o.SinkURL = v
	}
	return o, nil
}

// OptionsFromEnv returns DefaultOptions overridden by the process
// environment.
func OptionsFromEnv() (Options, error) {
	return DefaultOptions().WithEnv(os.LookupEnv)
}

// Sinks returns the sink factory selected by the options.
func (o Options) Sinks() SinkFactory {
	if o.SinkURL != "" {
		return WebSocketSinks(o.SinkURL)
	}
	return FileSinks(o.OutputDir)
}
