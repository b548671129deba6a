package diff

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/fdtrace/internal/trace"
)

// FormatError reports a row whose inputs disagree on the section kind.
// The files are not comparable past that point.
type FormatError struct {
	Row    int
	Inputs []string
	Kinds  []trace.Kind
}

func (e *FormatError) Error() string {
	parts := make([]string, len(e.Inputs))
	for i, name := range e.Inputs {
		parts[i] = fmt.Sprintf("%s: %s", name, e.Kinds[i])
	}
	return fmt.Sprintf("row %d: section kinds differ (%s)", e.Row, strings.Join(parts, ", "))
}

// IsFormatError checks if an error is a correlator format error
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
