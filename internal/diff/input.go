package diff

import (
	"io"

	"github.com/muurk/fdtrace/internal/trace"
)

// input is the per-file state of a correlation session.
type input struct {
	name string
	rd   *trace.Reader
	done bool

	// Addresses announced by GPUADDR, in first-seen order.
	addrs     []uint32
	addrColor map[uint32]int

	// Params announced since the last FLUSH.
	params []trace.Param

	buffers trace.Snapshots
	pending *trace.AddrRange

	// Dwords of the current row and how far ahead of the logical index
	// they are read.
	words []uint32
	off   int
}

func newInput(name string, r io.Reader) *input {
	return &input{
		name:      name,
		rd:        trace.NewReader(r),
		addrColor: make(map[uint32]int),
	}
}

// addAddr registers a gpu address and returns its colour index.
func (in *input) addAddr(addr uint32) int {
	if c, ok := in.addrColor[addr]; ok {
		return c
	}
	c := len(in.addrs)
	in.addrs = append(in.addrs, addr)
	in.addrColor[addr] = c
	return c
}

// word returns the dword at logical index j of the current row.
func (in *input) word(j int) (uint32, bool) {
	k := j + in.off
	if in.words == nil || k < 0 || k >= len(in.words) {
		return 0, false
	}
	return in.words[k], true
}
