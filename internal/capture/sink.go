package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/muurk/fdtrace/internal/trace"
)

// Sink receives encoded trace sections. Each Write carries exactly one
// section.
type Sink interface {
	io.Writer
	// Sync pushes buffered data to stable storage.
	Sync() error
	Close() error
}

// SinkFactory opens the sink for a named test.
type SinkFactory func(name string) (Sink, error)

// FileSinks returns a factory writing <dir>/<name>.rd files.
func FileSinks(dir string) SinkFactory {
	return func(name string) (Sink, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		path := filepath.Join(dir, trace.FileName(name))
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		return f, nil
	}
}
