package pm4

import "testing"

func TestType0Header(t *testing.T) {
	tests := []struct {
		name    string
		reg     uint32
		count   uint32
		sameReg bool
	}{
		{name: "single", reg: 0x2180, count: 1},
		{name: "block", reg: 0x0c06, count: 3},
		{name: "same register", reg: 0x2040, count: 3, sameReg: true},
		{name: "max reg", reg: 0x7fff, count: 0x4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := Type0Header(tt.reg, tt.count, tt.sameReg)
			if TypeOf(hdr) != Type0 {
				t.Errorf("TypeOf() = %v, want type0", TypeOf(hdr))
			}
			if Type0Reg(hdr) != tt.reg {
				t.Errorf("Type0Reg() = 0x%x, want 0x%x", Type0Reg(hdr), tt.reg)
			}
			if Count(hdr) != tt.count {
				t.Errorf("Count() = %d, want %d", Count(hdr), tt.count)
			}
			if Type0SameReg(hdr) != tt.sameReg {
				t.Errorf("Type0SameReg() = %v, want %v", Type0SameReg(hdr), tt.sameReg)
			}
			if PacketSize(hdr) != tt.count+1 {
				t.Errorf("PacketSize() = %d, want %d", PacketSize(hdr), tt.count+1)
			}
		})
	}
}

func TestType1Header(t *testing.T) {
	hdr := Type1Header(0x123, 0xabc)
	if TypeOf(hdr) != Type1 {
		t.Fatalf("TypeOf() = %v, want type1", TypeOf(hdr))
	}
	r1, r2 := Type1Regs(hdr)
	if r1 != 0x123 || r2 != 0xabc {
		t.Errorf("Type1Regs() = 0x%x, 0x%x, want 0x123, 0xabc", r1, r2)
	}
	if PacketSize(hdr) != 3 {
		t.Errorf("PacketSize() = %d, want 3", PacketSize(hdr))
	}
}

func TestType3Header(t *testing.T) {
	// Known encoding of CP_INDIRECT_BUFFER_PFD with two payload dwords.
	hdr := Type3Header(CPIndirectBufferPFD, 2)
	if hdr != 0xc0013700 {
		t.Errorf("Type3Header() = 0x%08x, want 0xc0013700", hdr)
	}
	if Type3Opcode(hdr) != CPIndirectBufferPFD {
		t.Errorf("Type3Opcode() = %v", Type3Opcode(hdr))
	}
	if Count(hdr) != 2 {
		t.Errorf("Count() = %d, want 2", Count(hdr))
	}
	if Type3Predicated(hdr) {
		t.Error("predicate bit should be clear")
	}
}

func TestType3OpcodeUsesEightBits(t *testing.T) {
	tests := []struct {
		name string
		hdr  uint32
		want Opcode
	}{
		{name: "bit 15 clear", hdr: 0xc0002d00, want: CPSetConstant},
		{name: "bit 15 set", hdr: 0xc000ad00, want: Opcode(0xad)},
		{name: "all opcode bits", hdr: 0xc000ff01, want: Opcode(0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Type3Opcode(tt.hdr); got != tt.want {
				t.Errorf("Type3Opcode(0x%08x) = 0x%02x, want 0x%02x", tt.hdr, uint32(got), uint32(tt.want))
			}
			if got := Type3Opcode(Type3Header(tt.want, 1)); got != tt.want {
				t.Errorf("Type3Opcode(Type3Header(0x%02x)) = 0x%02x", uint32(tt.want), uint32(got))
			}
		})
	}
}

func TestType2(t *testing.T) {
	if TypeOf(Type2Nop) != Type2 {
		t.Errorf("TypeOf(0x80000000) = %v, want type2", TypeOf(Type2Nop))
	}
	if PacketSize(Type2Nop) != 1 {
		t.Errorf("PacketSize() = %d, want 1", PacketSize(Type2Nop))
	}
}

func TestOpcodeString(t *testing.T) {
	if CPDrawIndx.String() != "CP_DRAW_INDX" {
		t.Errorf("String() = %q", CPDrawIndx.String())
	}
	if Opcode(0x7e).String() != "CP_UNKNOWN_7E" {
		t.Errorf("String() = %q", Opcode(0x7e).String())
	}
	if Event(4).String() != "CACHE_FLUSH_TS" {
		t.Errorf("Event(4).String() = %q", Event(4).String())
	}
}

func TestDrawInitiator(t *testing.T) {
	di := DrawInitiator(4 | uint32(SrcDMA)<<6 | 1<<11 | 36<<16)
	if di.PrimType() != 4 {
		t.Errorf("PrimType() = %v", di.PrimType())
	}
	if di.Source() != SrcDMA {
		t.Errorf("Source() = %v", di.Source())
	}
	if di.IndexSize() != 4 {
		t.Errorf("IndexSize() = %d, want 4", di.IndexSize())
	}
	if di.NumIndices() != 36 {
		t.Errorf("NumIndices() = %d, want 36", di.NumIndices())
	}
}

func TestLoadStateRoundTrip(t *testing.T) {
	in := LoadState{
		DstOff:  0x10,
		Source:  SSIndirect,
		Block:   SBFragShader,
		NumUnit: 12,
		Type:    STShader,
		ExtAddr: 0x40001000,
	}
	d0, d1 := EncodeLoadState(in)
	if got := DecodeLoadState(d0, d1); got != in {
		t.Errorf("DecodeLoadState() = %+v, want %+v", got, in)
	}
}
