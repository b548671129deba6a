package trace

import "strings"

// FileExt is the extension of trace files.
const FileExt = ".rd"

// FileName returns the trace file name for a test name. Characters outside
// [A-Za-z0-9._-] are replaced so the name is safe as a path element.
func FileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		s = "trace"
	}
	return s + FileExt
}
