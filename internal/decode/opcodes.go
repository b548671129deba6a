package decode

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/pm4"
	"github.com/muurk/fdtrace/internal/regdb"
	"github.com/muurk/fdtrace/internal/trace"
)

type opFunc func(d *Decoder, op pm4.Opcode, payload []uint32, level int)

// opHandler is one entry of the type-3 dispatch table.
type opHandler struct {
	// generic prints the payload as a hex dump.
	generic bool
	// quiet suppresses the mnemonic line.
	quiet bool
	// summary keeps the packet in summary listings.
	summary bool
	fn      opFunc
}

func newDispatch() map[uint32]opHandler {
	ib := opHandler{summary: true, fn: cpIndirect}
	draw := opHandler{summary: true, fn: cpDraw}
	generic := opHandler{generic: true}

	table := map[pm4.Opcode]opHandler{
		pm4.CPIndirectBufferPFD:     ib,
		pm4.CPIndirectBufferPFE:     ib,
		pm4.CPCondIndirectBufferPFD: ib,
		pm4.CPCondIndirectBufferPFE: ib,
		pm4.CPEventWrite:            {fn: cpEventWrite},
		pm4.CPSetConstant:           {fn: cpSetConstant},
		pm4.CPImLoadImmediate:       {fn: cpImLoadImmediate},
		pm4.CPLoadState:             {fn: cpLoadState},
		pm4.CPDrawIndx:              draw,
		pm4.CPDrawIndx2:             draw,
		pm4.CPDrawIndxBin:           draw,
		pm4.CPDrawIndx2Bin:          draw,
		pm4.CPRegRMW:                {quiet: true, fn: cpRegRMW},
		pm4.CPNop:                   {fn: cpNop},
		pm4.CPSetBinMask:            generic,
		pm4.CPSetBinSelect:          generic,
		pm4.CPSetBinData:            generic,
		pm4.CPSetBin:                generic,
		pm4.CPSetBinBaseOffset:      generic,
		pm4.CPWaitForIdle:           generic,
		pm4.CPWaitRegMem:            generic,
		pm4.CPWaitRegEq:             generic,
		pm4.CPWaitRegGte:            generic,
		pm4.CPWaitUntilRead:         generic,
		pm4.CPWaitIBPFDComplete:     generic,
		pm4.CPWaitMemWrites:         generic,
		pm4.CPWaitForMe:             generic,
		pm4.CPMemWrite:              generic,
		pm4.CPInvalidateState:       generic,
		pm4.CPSetDrawState:          generic,
		pm4.CPMeInit:                generic,
	}

	out := make(map[uint32]opHandler, len(table))
	for op, h := range table {
		out[uint32(op)] = h
	}
	return out
}

func (d *Decoder) dispatch(op pm4.Opcode, predicated bool, payload []uint32, level int) {
	h, ok := d.opcodes[uint32(op)]
	if !ok {
		h = opHandler{generic: true}
		logging.Debug("Unknown opcode", zap.String("opcode", op.String()), zap.Int("dwords", len(payload)))
	}

	show := !d.opts.Summary || h.summary
	if show && !h.quiet {
		line := fmt.Sprintf("opcode: %s (%02x) (%d dwords)", op, uint32(op), len(payload))
		if predicated {
			line += " (predicated)"
		}
		d.printf(level, "%s", d.st.opcode.Render(line))
	}
	if h.generic && show && !d.opts.Verbose {
		d.hexdump(level+1, 0, payload)
	}
	if h.fn != nil {
		h.fn(d, op, payload, level+1)
	}
}

func (d *Decoder) detail() bool {
	return !d.opts.Summary
}

func (d *Decoder) short(level int, op pm4.Opcode, need, got int) bool {
	if got >= need {
		return false
	}
	d.printf(level, "%s", d.st.warn.Render(fmt.Sprintf("%s: payload has %d dwords, need %d", op, got, need)))
	return true
}

func cpIndirect(d *Decoder, op pm4.Opcode, p []uint32, level int) {
	if d.short(level, op, 2, len(p)) {
		return
	}
	addr, size := p[0], p[1]
	if op == pm4.CPCondIndirectBufferPFD || op == pm4.CPCondIndirectBufferPFE {
		addr, size = p[len(p)-2], p[len(p)-1]
	}
	d.printf(level, "ibaddr: %s, ibsize: %d dwords", d.st.addr.Render(fmt.Sprintf("0x%08x", addr)), size)
	d.indirect(addr, size, level)
}

// indirect decodes the indirect buffer at addr, guarding against cycles
// and runaway nesting.
func (d *Decoder) indirect(addr, size uint32, level int) {
	if d.depth >= d.opts.MaxDepth {
		d.printf(level, "%s", d.st.warn.Render(fmt.Sprintf("%v: depth limit %d reached at 0x%08x", ErrRecursion, d.opts.MaxDepth, addr)))
		logging.Warn("Indirect buffer depth limit reached", logging.Hex("gpuaddr", uint64(addr)), zap.Int("depth", d.depth))
		return
	}
	if d.visited[addr] {
		d.printf(level, "%s", d.st.warn.Render(fmt.Sprintf("%v: cycle through 0x%08x", ErrRecursion, addr)))
		logging.Warn("Indirect buffer cycle", logging.Hex("gpuaddr", uint64(addr)))
		return
	}
	data, ok := d.resolve(addr, size*4)
	if !ok {
		d.unresolvedAddr(level, addr)
		return
	}

	d.visited[addr] = true
	d.depth++
	d.dumpCommands(trace.BytesToDwords(data), addr, level+1)
	d.depth--
	delete(d.visited, addr)
}

func cpEventWrite(d *Decoder, op pm4.Opcode, p []uint32, level int) {
	if len(p) == 0 || !d.detail() {
		return
	}
	d.printf(level, "event %s", pm4.Event(p[0]&0x3f))
	if len(p) >= 3 {
		d.printf(level, "addr 0x%08x, value %08x", p[1], p[2])
	}
}

func cpSetConstant(d *Decoder, op pm4.Opcode, p []uint32, level int) {
	if d.short(level, op, 1, len(p)) {
		return
	}
	typ, off, addFromReg := pm4.SetConstantHeader(p[0])
	vals := p[1:]

	switch typ {
	case pm4.ConstALU:
		if !d.detail() {
			return
		}
		for i := 0; i < len(vals); i += 4 {
			var b strings.Builder
			fmt.Fprintf(&b, "alu const %d:", (off+uint32(i))/4)
			for _, v := range vals[i:min(i+4, len(vals))] {
				fmt.Fprintf(&b, " %f", math.Float32frombits(v))
			}
			d.printf(level, "%s", b.String())
		}

	case pm4.ConstFetch:
		if off < pm4.TexConstLimit {
			if !d.detail() {
				return
			}
			// Texture fetch constants are six dwords each.
			for i := 0; i < len(vals); i += 6 {
				var b strings.Builder
				fmt.Fprintf(&b, "tex const %d:", (off+uint32(i))/6)
				for _, v := range vals[i:min(i+6, len(vals))] {
					fmt.Fprintf(&b, " %08x", v)
				}
				d.printf(level, "%s", b.String())
			}
			return
		}
		// Vertex fetch constants: dword 0 holds the address, dword 1 the
		// size in dwords at bits 2..25.
		for i := 0; i+1 < len(vals); i += 2 {
			idx := (off - pm4.TexConstLimit + uint32(i)) / 2
			addr := vals[i] &^ 0x3
			size := (vals[i+1] >> 2) & 0xffffff
			d.dumpBuffer(level, fmt.Sprintf("vertex fetch %d", idx), addr, size*4)
		}

	case pm4.ConstBool:
		if !d.detail() {
			return
		}
		for i, v := range vals {
			d.printf(level, "bool const %d: %08x", off+uint32(i), v)
		}

	case pm4.ConstLoop:
		if !d.detail() {
			return
		}
		for i, v := range vals {
			d.printf(level, "loop const %d: %08x", off+uint32(i), v)
		}

	case pm4.ConstRegister:
		dst := off + pm4.RegisterConstBase
		if addFromReg {
			if d.short(level, op, 3, len(p)) {
				return
			}
			src, val := p[1], p[2]
			srcVal := d.state.Value(src)
			if d.detail() {
				d.printf(level, "%s = %08x + %s (%08x)",
					d.st.reg.Render(regdb.DisplayName(d.regs, dst)), val,
					d.st.reg.Render(regdb.DisplayName(d.regs, src)), srcVal)
			}
			d.writeReg(dst, val+srcVal, level)
			return
		}
		for i, v := range vals {
			d.writeReg(dst+uint32(i), v, level)
		}

	default:
		if d.detail() {
			d.printf(level, "%s", d.st.warn.Render(fmt.Sprintf("unknown constant type %d", typ)))
			d.hexdump(level, 0, vals)
		}
	}
}

func shaderExt(fragment bool) string {
	if fragment {
		return "fo"
	}
	return "vo"
}

func cpImLoadImmediate(d *Decoder, op pm4.Opcode, p []uint32, level int) {
	if d.short(level, op, 2, len(p)) {
		return
	}
	fragment := p[0] == 1
	start, size := p[1]>>16, p[1]&0xffff
	body := p[2:]

	if d.detail() {
		label := "vertex"
		if fragment {
			label = "fragment"
		}
		d.printf(level, "%s shader, start=%d, size=%d", label, start, size)
		d.hexdump(level+1, 0, body)
	}
	d.writeFile(shaderExt(fragment), trace.DwordsToBytes(body))
}

// loadStateDwords returns the payload size of a CP_LOAD_STATE in dwords.
func loadStateDwords(ls pm4.LoadState) uint32 {
	switch ls.Block {
	case pm4.SBVertShader, pm4.SBFragShader:
		if ls.Type == pm4.STShader {
			return ls.NumUnit * 2
		}
		return ls.NumUnit * 4
	case pm4.SBVertTex, pm4.SBFragTex:
		if ls.Type == pm4.STShader {
			return ls.NumUnit * 2
		}
		return ls.NumUnit * 4
	default:
		return ls.NumUnit
	}
}

func cpLoadState(d *Decoder, op pm4.Opcode, p []uint32, level int) {
	if d.short(level, op, 2, len(p)) {
		return
	}
	ls := pm4.DecodeLoadState(p[0], p[1])
	n := loadStateDwords(ls)

	var body []uint32
	if ls.Source == pm4.SSDirect {
		body = p[2:]
	} else {
		data, ok := d.resolve(ls.ExtAddr, n*4)
		if !ok {
			d.unresolvedAddr(level, ls.ExtAddr)
			return
		}
		body = trace.BytesToDwords(data)
	}
	if uint32(len(body)) > n {
		body = body[:n]
	}

	if d.detail() {
		d.printf(level, "%s %s, dst_off=%d, num_unit=%d, %s",
			ls.Block, ls.Type, ls.DstOff, ls.NumUnit, sourceName(ls))
	}

	switch ls.Block {
	case pm4.SBVertShader, pm4.SBFragShader:
		fragment := ls.Block == pm4.SBFragShader
		if ls.Type == pm4.STShader {
			if d.detail() {
				d.hexdump(level+1, 0, body)
			}
			d.writeFile(shaderExt(fragment), trace.DwordsToBytes(body))
			return
		}
		if !d.detail() {
			return
		}
		for i := 0; i+3 < len(body); i += 4 {
			d.printf(level+1, "c%d: %f %f %f %f", ls.DstOff+uint32(i/4),
				math.Float32frombits(body[i]), math.Float32frombits(body[i+1]),
				math.Float32frombits(body[i+2]), math.Float32frombits(body[i+3]))
		}

	case pm4.SBVertTex, pm4.SBFragTex:
		if !d.detail() {
			return
		}
		if ls.Type == pm4.STShader {
			for i := 0; i+1 < len(body); i += 2 {
				d.printf(level+1, "sampler %d: %08x %08x", ls.DstOff+uint32(i/2), body[i], body[i+1])
			}
			return
		}
		for i := 0; i+3 < len(body); i += 4 {
			d.printf(level+1, "tex const %d: %08x %08x %08x %08x", ls.DstOff+uint32(i/4),
				body[i], body[i+1], body[i+2], body[i+3])
		}

	case pm4.SBVertMipAddr, pm4.SBFragMipAddr:
		if !d.detail() {
			return
		}
		for i, v := range body {
			d.printf(level+1, "mipaddr %d: %s", ls.DstOff+uint32(i), d.st.addr.Render(fmt.Sprintf("0x%08x", v)))
		}

	default:
		if d.detail() {
			d.hexdump(level+1, 0, body)
		}
	}
}

func sourceName(ls pm4.LoadState) string {
	if ls.Source == pm4.SSDirect {
		return "direct"
	}
	return fmt.Sprintf("indirect 0x%08x", ls.ExtAddr)
}

func cpDraw(d *Decoder, op pm4.Opcode, p []uint32, level int) {
	if d.short(level, op, 2, len(p)) {
		return
	}
	di := pm4.DrawInitiator(p[1])
	d.draws++
	d.printf(level, "%s", d.st.draw.Render(fmt.Sprintf("draw %d: %s", d.draws, di)))
	if di.NumIndices() == 0 {
		return
	}

	switch op {
	case pm4.CPDrawIndx, pm4.CPDrawIndxBin:
		if di.Source() == pm4.SrcDMA && len(p) >= 4 {
			d.indexBuffer(level, p[2], p[3], di)
		}
	case pm4.CPDrawIndx2, pm4.CPDrawIndx2Bin:
		if di.Source() == pm4.SrcImmediate && len(p) > 2 {
			d.printf(level, "inline indices: %d bytes", (len(p)-2)*4)
			if d.detail() {
				d.printIndices(level+1, trace.DwordsToBytes(p[2:]), di)
			}
		}
	}

	if d.detail() {
		d.printf(level, "register state:")
		d.dumpRegisterState(level + 1)
	}
}

func (d *Decoder) indexBuffer(level int, addr, size uint32, di pm4.DrawInitiator) {
	data, ok := d.resolve(addr, size)
	if !ok {
		d.unresolvedAddr(level, addr)
		return
	}
	d.printf(level, "index buffer: %s, %d bytes", d.st.addr.Render(fmt.Sprintf("0x%08x", addr)), len(data))
	if d.detail() {
		d.printIndices(level+1, data, di)
	}
}

// printIndices prints up to NumIndices indices, sixteen per line.
func (d *Decoder) printIndices(level int, data []byte, di pm4.DrawInitiator) {
	sz := int(di.IndexSize())
	n := len(data) / sz
	if limit := int(di.NumIndices()); n > limit {
		n = limit
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		var v uint32
		for j := 0; j < sz; j++ {
			v |= uint32(data[i*sz+j]) << (8 * j)
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", v)
		if (i+1)%16 == 0 || i == n-1 {
			d.printf(level, "%s", b.String())
			b.Reset()
		}
	}
}

func cpRegRMW(d *Decoder, op pm4.Opcode, p []uint32, level int) {
	if len(p) < 3 {
		return
	}
	reg := p[0]
	d.state.Set(reg, (d.state.Value(reg)&p[1])|p[2])
}

func cpNop(d *Decoder, op pm4.Opcode, p []uint32, level int) {
	if !d.detail() || len(p) == 0 {
		return
	}
	raw := trace.DwordsToBytes(p)
	text := strings.TrimRight(string(raw), "\x00")
	if text != "" && isPrintable(text) {
		d.printf(level, "nop: %q", text)
		return
	}
	d.hexdump(level, 0, p)
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}
