package decode

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/pm4"
	"github.com/muurk/fdtrace/internal/regdb"
	"github.com/muurk/fdtrace/internal/trace"
)

// dumpCommands decodes a run of PM4 packets located at gpu address addr
// (0 for inline streams).
func (d *Decoder) dumpCommands(words []uint32, addr uint32, level int) {
	for i := 0; i < len(words); {
		hdr := words[i]
		size := int(pm4.PacketSize(hdr))
		pktAddr := addr + uint32(i*4)

		if d.opts.Verbose {
			end := i + size
			if end > len(words) {
				end = len(words)
			}
			d.hexdump(level, pktAddr, words[i:end])
		}
		if i+size > len(words) {
			d.printf(level, "%s", d.st.warn.Render(fmt.Sprintf(
				"packet at 0x%08x needs %d dwords, %d left", pktAddr, size, len(words)-i)))
			logging.Warn("Truncated packet",
				logging.Hex("gpuaddr", uint64(pktAddr)),
				zap.Int("size", size),
			)
			return
		}
		payload := words[i+1 : i+size]

		switch pm4.TypeOf(hdr) {
		case pm4.Type0:
			reg := pm4.Type0Reg(hdr)
			same := pm4.Type0SameReg(hdr)
			for j, val := range payload {
				r := reg
				if !same {
					r += uint32(j)
				}
				d.writeReg(r, val, level)
			}
		case pm4.Type1:
			r1, r2 := pm4.Type1Regs(hdr)
			d.writeReg(r1, payload[0], level)
			d.writeReg(r2, payload[1], level)
		case pm4.Type2:
			if d.opts.Verbose {
				d.printf(level, "%s", d.st.muted.Render("nop"))
			}
		case pm4.Type3:
			d.dispatch(pm4.Type3Opcode(hdr), pm4.Type3Predicated(hdr), payload, level)
		}
		i += size
	}
}

// writeReg records a register write, prints it and runs any register
// specific handler.
func (d *Decoder) writeReg(reg, val uint32, level int) {
	d.state.Set(reg, val)
	if !d.opts.Summary {
		d.printf(level, "write %s (%04x) = %s",
			d.st.reg.Render(regdb.DisplayName(d.regs, reg)), reg, d.regs.Format(reg, val))
	}
	if hook, ok := d.regHooks[reg]; ok {
		hook(d, reg, val, level+1)
	}
}

// dumpRegisterState prints every register written so far.
func (d *Decoder) dumpRegisterState(level int) {
	for _, reg := range d.state.Regs() {
		val := d.state.Value(reg)
		d.printf(level, "%s (%04x) = %s",
			d.st.reg.Render(regdb.DisplayName(d.regs, reg)), reg, d.regs.Format(reg, val))
	}
}

// dumpBuffer prints size bytes at addr, counting a miss as unresolved.
// It returns the number of bytes found.
func (d *Decoder) dumpBuffer(level int, label string, addr, size uint32) int {
	data, ok := d.resolve(addr, size)
	if !ok {
		d.unresolvedAddr(level, addr)
		return 0
	}
	d.printf(level, "%s: %s, %d bytes", label, d.st.addr.Render(fmt.Sprintf("0x%08x", addr)), len(data))
	if !d.opts.Summary {
		d.hexdump(level+1, addr, trace.BytesToDwords(data))
	}
	return len(data)
}
