package diff

import (
	"math/bits"

	"github.com/muurk/fdtrace/internal/trace"
)

// Masks is the catalog tried, in order, when matching a dword against the
// same position in the sibling inputs.
var Masks = []uint32{
	0xffffffff,
	0xffffff00,
	0x00ffffff,
	0xffff0000,
	0x0000ffff,
	0x00ffff00,
	0xff000000,
	0x00ff0000,
	0x0000ff00,
	0x000000ff,
}

// Class is the classification of one command stream dword.
type Class int

// Classes, in priority order.
const (
	ClassPlain Class = iota
	ClassAddress
	ClassMask
	ClassParam
)

func (c Class) String() string {
	switch c {
	case ClassAddress:
		return "address"
	case ClassMask:
		return "mask"
	case ClassParam:
		return "param"
	default:
		return "plain"
	}
}

// Match is the classification of a dword.
type Match struct {
	Class Class
	Value uint32
	// Color is the first-seen index of the address (ClassAddress).
	Color int
	// Mask is the catalog mask the siblings agree under (ClassMask).
	Mask uint32
	// Params names the matching params (ClassParam).
	Params []string
}

// Weight scores a match for offset alignment.
func (m Match) Weight() int {
	switch m.Class {
	case ClassAddress:
		return 4
	case ClassMask:
		return 1 + bits.OnesCount32(m.Mask)/8
	case ClassParam:
		return 2
	default:
		return 0
	}
}

// MatchMask returns the first catalog mask under which v equals every
// peer. There is no match without peers.
func MatchMask(v uint32, peers []uint32) (uint32, bool) {
	if len(peers) == 0 {
		return 0, false
	}
	for _, m := range Masks {
		ok := true
		for _, p := range peers {
			if v&m != p&m {
				ok = false
				break
			}
		}
		if ok {
			return m, true
		}
	}
	return 0, false
}

// MatchParam reports whether some BitLen-aligned field of v holds the
// param value. Zero values never match.
func MatchParam(v uint32, p trace.Param) bool {
	if p.BitLen == 0 || p.BitLen > 32 {
		return false
	}
	mask := uint32(uint64(1)<<p.BitLen - 1)
	want := p.Value & mask
	if want == 0 {
		return false
	}
	for shift := uint32(0); shift+p.BitLen <= 32; shift += p.BitLen {
		if (v>>shift)&mask == want {
			return true
		}
	}
	return false
}
