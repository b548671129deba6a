package decode

import (
	"fmt"

	"github.com/muurk/fdtrace/internal/regdb"
)

// regHook runs after a register write. Some state is split across two
// registers, so the hook fires on the word that completes it.
type regHook func(d *Decoder, reg, val uint32, level int)

func newRegHooks(r regdb.Resolver) map[uint32]regHook {
	hooks := make(map[uint32]regHook)

	for i := 0; i < 16; i++ {
		instr0, ok0 := r.Lookup(fmt.Sprintf("VFD_FETCH[%d].INSTR_0", i))
		instr1, ok1 := r.Lookup(fmt.Sprintf("VFD_FETCH[%d].INSTR_1", i))
		if !ok0 || !ok1 {
			continue
		}
		idx := i
		hooks[instr1] = func(d *Decoder, reg, val uint32, level int) {
			d.vertexFetch(idx, d.state.Value(instr0), val, level)
		}
	}

	for i := 0; i < 8; i++ {
		config, ok0 := r.Lookup(fmt.Sprintf("VSC_PIPE[%d].CONFIG", i))
		addr, ok1 := r.Lookup(fmt.Sprintf("VSC_PIPE[%d].DATA_ADDRESS", i))
		length, ok2 := r.Lookup(fmt.Sprintf("VSC_PIPE[%d].DATA_LENGTH", i))
		if !ok0 || !ok1 || !ok2 {
			continue
		}
		idx := i
		hooks[length] = func(d *Decoder, reg, val uint32, level int) {
			label := fmt.Sprintf("vsc pipe %d (config %08x)", idx, d.state.Value(config))
			d.dumpBuffer(level, label, d.state.Value(addr), val)
		}
	}

	return hooks
}

// vertexFetch dumps the vertex buffer described by a VFD_FETCH_INSTR_0/1
// pair: stride in bits 7..16 of INSTR_0, fetch size in bits 0..6.
func (d *Decoder) vertexFetch(idx int, instr0, addr uint32, level int) {
	fetchSize := (instr0 & 0x7f) + 1
	stride := (instr0 >> 7) & 0x3ff
	size := stride * d.vertexCount()
	if size == 0 {
		size = fetchSize
	}
	label := fmt.Sprintf("vertex buffer %d (stride %d, fetch size %d)", idx, stride, fetchSize)
	d.dumpBuffer(level, label, addr, size)
}

// vertexCount derives the number of vertices from VFD_INDEX_MIN/MAX, or 1
// when they have not been programmed.
func (d *Decoder) vertexCount() uint32 {
	minReg, ok0 := d.regs.Lookup("VFD_INDEX_MIN")
	maxReg, ok1 := d.regs.Lookup("VFD_INDEX_MAX")
	if !ok0 || !ok1 {
		return 1
	}
	lo, _ := d.state.Get(minReg)
	hi, ok := d.state.Get(maxReg)
	if !ok || hi < lo {
		return 1
	}
	return hi - lo + 1
}
