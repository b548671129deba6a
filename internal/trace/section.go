package trace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the size of the type+size prefix of every section.
const HeaderSize = 8

// MaxPayload bounds a single section payload. Real captures stay far below
// it; anything larger is a corrupt size field.
const MaxPayload = 256 << 20

// ErrTruncated is returned when a section header announces more payload
// bytes than the stream contains.
var ErrTruncated = errors.New("truncated section payload")

// Section is one typed, length-prefixed record of a trace file.
type Section struct {
	Kind    Kind
	Payload []byte
}

// String returns a debug representation of the section
func (s *Section) String() string {
	return fmt.Sprintf("Section{kind=%s, size=%d}", s.Kind, len(s.Payload))
}

// Dwords returns the payload as little-endian 32-bit words. Trailing bytes
// that do not fill a word are ignored.
func (s *Section) Dwords() []uint32 {
	return BytesToDwords(s.Payload)
}

// BytesToDwords converts little-endian bytes to words.
func BytesToDwords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

// DwordsToBytes converts words to little-endian bytes.
func DwordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// ReadSection reads one section from r.
//
// A short or empty read of the header is the end of the stream and returns
// io.EOF. A header whose payload cannot be read in full returns ErrTruncated.
func ReadSection(r io.Reader) (*Section, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read section header: %w", err)
	}

	kind := Kind(binary.LittleEndian.Uint32(header[0:4]))
	size := binary.LittleEndian.Uint32(header[4:8])
	if size > MaxPayload {
		return nil, &FormatError{Kind: kind, Msg: fmt.Sprintf("payload size %d exceeds limit", size)}
	}

	sect := &Section{Kind: kind}
	if size > 0 {
		sect.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, sect.Payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%s section of %d bytes: %w", kind, size, ErrTruncated)
			}
			return nil, fmt.Errorf("failed to read section payload: %w", err)
		}
	}

	return sect, nil
}

// Encode returns the wire encoding of a section.
func Encode(kind Kind, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(kind))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Reader walks the sections of a trace stream.
type Reader struct {
	r     *bufio.Reader
	count int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next section, or io.EOF at the end of the stream.
func (r *Reader) Next() (*Section, error) {
	sect, err := ReadSection(r.r)
	if err != nil {
		return nil, err
	}
	r.count++
	return sect, nil
}

// Count returns the number of sections read so far.
func (r *Reader) Count() int {
	return r.count
}

// ReadAll reads every section until EOF.
func ReadAll(r io.Reader) ([]*Section, error) {
	rd := NewReader(r)
	var sections []*Section
	for {
		sect, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return sections, nil
		}
		if err != nil {
			return sections, err
		}
		sections = append(sections, sect)
	}
}

// Writer encodes sections onto an underlying stream.
type Writer struct {
	w     io.Writer
	count int
}

// NewWriter returns a Writer over w. Each section is issued as a single
// Write call so that message-oriented sinks see whole sections.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteSection writes one section.
func (w *Writer) WriteSection(kind Kind, payload []byte) error {
	if len(payload) > MaxPayload {
		return &FormatError{Kind: kind, Msg: fmt.Sprintf("payload size %d exceeds limit", len(payload))}
	}
	if _, err := w.w.Write(Encode(kind, payload)); err != nil {
		return fmt.Errorf("failed to write %s section: %w", kind, err)
	}
	w.count++
	return nil
}

// Write writes s.
func (w *Writer) Write(s *Section) error {
	return w.WriteSection(s.Kind, s.Payload)
}

// WriteText writes a text section (TEST, CMD, shader sources).
func (w *Writer) WriteText(kind Kind, text string) error {
	return w.WriteSection(kind, []byte(text))
}

// Count returns the number of sections written so far.
func (w *Writer) Count() int {
	return w.count
}
