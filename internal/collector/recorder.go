package collector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/trace"
)

// recorder writes the sections of one connection to trace files.
type recorder struct {
	dir  string
	base string

	file  *os.File
	w     *trace.Writer
	files []string
}

func newRecorder(dir, base string) *recorder {
	return &recorder{dir: dir, base: base}
}

// write appends one section, rotating files on TEST.
func (r *recorder) write(s *trace.Section) error {
	if s.Kind == trace.KindTest || r.w == nil {
		name := r.base
		if s.Kind == trace.KindTest {
			name = trace.Text(s)
		}
		if err := r.open(name); err != nil {
			return err
		}
	}
	return r.w.Write(s)
}

// open closes the current file and creates a new one. A name already
// taken in dir, by this connection, another connection or an earlier run,
// gets the first free numeric suffix so that no trace is overwritten.
func (r *recorder) open(name string) error {
	if err := r.close(); err != nil {
		return err
	}

	f, err := createExclusive(r.dir, trace.FileName(name))
	if err != nil {
		return err
	}
	r.file = f
	r.w = trace.NewWriter(f)
	r.files = append(r.files, f.Name())
	logging.Info("Recording trace", zap.String("path", f.Name()))
	return nil
}

// maxSuffix bounds the search for a free file name.
const maxSuffix = 10000

func createExclusive(dir, file string) (*os.File, error) {
	stem := strings.TrimSuffix(file, trace.FileExt)
	for n := 0; n < maxSuffix; n++ {
		candidate := file
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, n, trace.FileExt)
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create trace file: no free name for %s in %s", file, dir)
}

func (r *recorder) close() error {
	if r.file == nil {
		return nil
	}
	count := r.w.Count()
	err := r.file.Close()
	logging.Info("Trace closed",
		zap.String("path", r.file.Name()),
		zap.Int("sections", count),
	)
	r.file = nil
	r.w = nil
	if err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}
