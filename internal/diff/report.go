package diff

import (
	"fmt"
	"strings"
)

// paletteSize is the number of address colours in the stylesheet.
const paletteSize = 8

// Report is the correlated view of N traces.
type Report struct {
	Title  string
	Inputs []string
	Rows   []Row
}

// Row is one section of every input.
type Row struct {
	Index int
	Kind  string
	Cells []Cell
	// Lines holds the classified dwords of command stream rows.
	Lines []Line
}

// Cell is one input's summary of a row.
type Cell struct {
	Text  string
	Class string
}

// Line is one logical dword index of a command stream row.
type Line struct {
	Index int
	Cells []WordCell
}

// WordCell is one input's dword at a line, preceded by any dwords skipped
// by realignment.
type WordCell struct {
	Skipped []string
	Word    *Word
}

// Word is a rendered dword.
type Word struct {
	Class string
	Text  string
	Title string
	// Bytes is set for mask matches, most significant first.
	Bytes []Byte
}

// Byte is one byte of a mask match.
type Byte struct {
	Text    string
	Matched bool
}

func addrClass(color int) string {
	return fmt.Sprintf("addr a%d", color%paletteSize)
}

func renderWord(m Match) Word {
	text := fmt.Sprintf("%08x", m.Value)
	switch m.Class {
	case ClassAddress:
		return Word{Class: addrClass(m.Color), Text: text}
	case ClassMask:
		w := Word{Class: "mask", Text: text}
		for shift := 24; shift >= 0; shift -= 8 {
			w.Bytes = append(w.Bytes, Byte{
				Text:    fmt.Sprintf("%02x", (m.Value>>shift)&0xff),
				Matched: (m.Mask>>shift)&0xff == 0xff,
			})
		}
		return w
	case ClassParam:
		return Word{Class: "param", Text: text, Title: strings.Join(m.Params, ",")}
	default:
		return Word{Class: "plain", Text: text}
	}
}
