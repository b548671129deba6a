package diff

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muurk/fdtrace/internal/trace"
)

type traceBuilder struct {
	buf bytes.Buffer
}

func (b *traceBuilder) section(kind trace.Kind, payload []byte) *traceBuilder {
	b.buf.Write(trace.Encode(kind, payload))
	return b
}

func (b *traceBuilder) cmdstream(words ...uint32) *traceBuilder {
	return b.section(trace.KindCmdstream, trace.DwordsToBytes(words))
}

func (b *traceBuilder) gpuaddr(addr, length uint32) *traceBuilder {
	return b.section(trace.KindGPUAddr, trace.AddrRange{GPUAddr: addr, Length: length}.Encode())
}

func (b *traceBuilder) param(kind trace.ParamKind, value, bitlen uint32) *traceBuilder {
	return b.section(trace.KindParam, trace.Param{Kind: kind, Value: value, BitLen: bitlen}.Encode())
}

func correlate(t *testing.T, traces ...*traceBuilder) *Report {
	t.Helper()
	c := New(Options{})
	for i, tb := range traces {
		c.Add(string(rune('a'+i))+".rd", bytes.NewReader(tb.buf.Bytes()))
	}
	rep, err := c.Correlate()
	if err != nil {
		t.Fatalf("Correlate() error = %v", err)
	}
	return rep
}

func TestMatchMask(t *testing.T) {
	tests := []struct {
		name   string
		v      uint32
		peers  []uint32
		want   uint32
		wantOK bool
	}{
		{name: "equal", v: 0x1234, peers: []uint32{0x1234}, want: 0xffffffff, wantOK: true},
		{name: "high half", v: 0x12003400, peers: []uint32{0x12003401, 0x12009902}, want: 0xffff0000, wantOK: true},
		{name: "low byte", v: 0xaa0000ff, peers: []uint32{0xbb1111ff}, want: 0x000000ff, wantOK: true},
		{name: "nothing", v: 0x12345678, peers: []uint32{0x87654321}},
		{name: "no peers", v: 0x1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchMask(tt.v, tt.peers)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("MatchMask() = 0x%08x, %v, want 0x%08x, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMatchParam(t *testing.T) {
	tests := []struct {
		name  string
		v     uint32
		param trace.Param
		want  bool
	}{
		{name: "full word", v: 0xff00ff00, param: trace.Param{Value: 0xff00ff00, BitLen: 32}, want: true},
		{name: "aligned field", v: 0x00110000, param: trace.Param{Value: 0x11, BitLen: 8}, want: true},
		{name: "14 bit field", v: 17 << 14, param: trace.Param{Value: 17, BitLen: 14}, want: true},
		{name: "misaligned", v: 0x00001100 >> 4, param: trace.Param{Value: 0x11, BitLen: 8}},
		{name: "zero never matches", v: 0, param: trace.Param{Value: 0, BitLen: 8}},
		{name: "bad bitlen", v: 1, param: trace.Param{Value: 1, BitLen: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchParam(tt.v, tt.param); got != tt.want {
				t.Errorf("MatchParam(0x%08x, %+v) = %v, want %v", tt.v, tt.param, got, tt.want)
			}
		})
	}
}

func TestMaskClassification(t *testing.T) {
	rep := correlate(t,
		new(traceBuilder).cmdstream(0x12003400),
		new(traceBuilder).cmdstream(0x12003401),
		new(traceBuilder).cmdstream(0x12009902),
	)
	if len(rep.Rows) != 1 || len(rep.Rows[0].Lines) != 1 {
		t.Fatalf("got %d rows, want 1 row with 1 line", len(rep.Rows))
	}
	for i, cell := range rep.Rows[0].Lines[0].Cells {
		w := cell.Word
		if w == nil || w.Class != "mask" {
			t.Fatalf("input %d: word = %+v, want mask", i, w)
		}
		matched := []bool{w.Bytes[0].Matched, w.Bytes[1].Matched, w.Bytes[2].Matched, w.Bytes[3].Matched}
		want := []bool{true, true, false, false}
		for k := range want {
			if matched[k] != want[k] {
				t.Errorf("input %d byte %d matched = %v, want %v", i, k, matched[k], want[k])
			}
		}
	}
}

func TestAddressClassification(t *testing.T) {
	a := new(traceBuilder).gpuaddr(0x1000, 0x10).gpuaddr(0x2000, 0x10).cmdstream(0x2000, 0x1000)
	b := new(traceBuilder).gpuaddr(0x5000, 0x10).gpuaddr(0x6000, 0x10).cmdstream(0x6000, 0x5000)
	rep := correlate(t, a, b)

	lines := rep.Rows[2].Lines
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if got := lines[0].Cells[0].Word.Class; got != "addr a1" {
		t.Errorf("0x2000 class = %q, want addr a1", got)
	}
	if got := lines[1].Cells[1].Word.Class; got != "addr a0" {
		t.Errorf("0x5000 class = %q, want addr a0", got)
	}
}

func TestParamClassification(t *testing.T) {
	a := new(traceBuilder).
		param(trace.ParamColor, 0xff00ff00, 32).
		cmdstream(0xff00ff00).
		section(trace.KindFlush, nil).
		cmdstream(0xff00ff00)
	b := new(traceBuilder).
		param(trace.ParamColor, 0x00ff00ff, 32).
		cmdstream(0x00ff00ff).
		section(trace.KindFlush, nil).
		cmdstream(0x00ff00ff)
	rep := correlate(t, a, b)

	if len(rep.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rep.Rows))
	}
	w := rep.Rows[1].Lines[0].Cells[0].Word
	if w.Class != "param" || w.Title != "COLOR" {
		t.Errorf("word = %+v, want param COLOR", w)
	}
	if w := rep.Rows[3].Lines[0].Cells[0].Word; w.Class != "plain" {
		t.Errorf("after FLUSH word = %+v, want plain", w)
	}
}

func TestKindMismatch(t *testing.T) {
	c := New(Options{})
	c.Add("a.rd", bytes.NewReader(new(traceBuilder).section(trace.KindTest, []byte("x")).buf.Bytes()))
	c.Add("b.rd", bytes.NewReader(new(traceBuilder).section(trace.KindCmd, []byte("x")).buf.Bytes()))

	_, err := c.Correlate()
	if !IsFormatError(err) {
		t.Fatalf("Correlate() error = %v, want FormatError", err)
	}
	if !strings.Contains(err.Error(), "a.rd: TEST, b.rd: CMD") {
		t.Errorf("error = %q", err)
	}
}

func TestTermination(t *testing.T) {
	a := new(traceBuilder).
		section(trace.KindTest, []byte("one")).
		section(trace.KindCmd, []byte("draw")).
		section(trace.KindCmd, nil).
		section(trace.KindCmd, []byte("never read"))
	b := new(traceBuilder).
		section(trace.KindTest, []byte("one"))
	rep := correlate(t, a, b)

	if len(rep.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rep.Rows))
	}
	if rep.Rows[1].Cells[1].Class != "empty" {
		t.Errorf("input at EOF should render an empty cell, got %+v", rep.Rows[1].Cells[1])
	}
}

func TestFlushDoesNotTerminate(t *testing.T) {
	tb := func() *traceBuilder {
		return new(traceBuilder).section(trace.KindFlush, nil).section(trace.KindCmd, []byte("after"))
	}
	rep := correlate(t, tb(), tb())
	if len(rep.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rep.Rows))
	}
}

func TestMalformedSectionsKeepCorrelating(t *testing.T) {
	tests := []struct {
		name    string
		kind    trace.Kind
		payload []byte
	}{
		{"param bit length zero", trace.KindParam, trace.Param{Kind: trace.ParamKind(3), Value: 0xff, BitLen: 0}.Encode()},
		{"short gpuaddr", trace.KindGPUAddr, []byte{1, 2, 3, 4}},
		{"short gpu id", trace.KindGPUID, []byte{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := func() *traceBuilder {
				return new(traceBuilder).
					section(tt.kind, tt.payload).
					section(trace.KindCmd, []byte("after param"))
			}
			rep := correlate(t, tb(), tb())

			if len(rep.Rows) != 2 {
				t.Fatalf("got %d rows, want 2", len(rep.Rows))
			}
			for i, cell := range rep.Rows[0].Cells {
				if cell.Class != "warn" || !strings.Contains(cell.Text, "malformed") {
					t.Errorf("input %d cell = %+v, want warning", i, cell)
				}
			}
			if got := rep.Rows[1].Cells[0].Text; got != "after param" {
				t.Errorf("row after malformed section = %q, want %q", got, "after param")
			}
		})
	}
}

func TestFuzzAlignment(t *testing.T) {
	a := new(traceBuilder).cmdstream(1, 0xaaaa0000, 0xbbbb0000, 0xcccc0000)
	b := new(traceBuilder).cmdstream(1, 0x0000dead, 0xaaaa0000, 0xbbbb0000, 0xcccc0000)
	rep := correlate(t, a, b)

	lines := rep.Rows[0].Lines
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if got := lines[1].Cells[1].Skipped; len(got) != 1 || got[0] != "0000dead" {
		t.Errorf("skipped = %v, want [0000dead]", got)
	}
	for j := 1; j < 4; j++ {
		for i := 0; i < 2; i++ {
			w := lines[j].Cells[i].Word
			if w == nil || w.Class != "mask" || !w.Bytes[3].Matched {
				t.Errorf("line %d input %d = %+v, want full mask match", j, i, w)
			}
		}
	}
}

func TestFuzzAlignmentManyInputs(t *testing.T) {
	tests := []struct {
		name   string
		inputs int
	}{
		{name: "exhaustive", inputs: 3},
		{name: "greedy", inputs: 9},
		{name: "greedy wide", inputs: 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{})
			odd := tt.inputs - 1
			for i := 0; i < tt.inputs; i++ {
				tb := new(traceBuilder).cmdstream(1, 0xaaaa0000, 0xbbbb0000, 0xcccc0000)
				if i == odd {
					tb = new(traceBuilder).cmdstream(1, 0x0000dead, 0xaaaa0000, 0xbbbb0000, 0xcccc0000)
				}
				c.Add(string(rune('a'+i))+".rd", bytes.NewReader(tb.buf.Bytes()))
			}
			rep, err := c.Correlate()
			if err != nil {
				t.Fatalf("Correlate() error = %v", err)
			}

			lines := rep.Rows[0].Lines
			if len(lines) != 4 {
				t.Fatalf("got %d lines, want 4", len(lines))
			}
			for i, cell := range lines[1].Cells {
				want := 0
				if i == odd {
					want = 1
				}
				if len(cell.Skipped) != want {
					t.Errorf("input %d skipped %v, want %d dwords", i, cell.Skipped, want)
				}
			}
			if w := lines[1].Cells[0].Word; w == nil || w.Class != "mask" {
				t.Errorf("line 1 = %+v, want mask match after realignment", w)
			}

			limit := DefaultFuzzLimit
			if bound := len(lines) * (1 + tt.inputs*tt.inputs*limit); c.scored > min(bound, maxCombinations*len(lines)) {
				t.Errorf("scored %d windows, want at most %d", c.scored, bound)
			}
		})
	}
}

func TestCmdstreamAddrResolved(t *testing.T) {
	tb := func(v uint32) *traceBuilder {
		return new(traceBuilder).
			gpuaddr(0x1000, 8).
			section(trace.KindBufferContents, trace.DwordsToBytes([]uint32{0x11, v})).
			section(trace.KindCmdstreamAddr, trace.AddrRange{GPUAddr: 0x1000, Length: 2}.Encode())
	}
	rep := correlate(t, tb(0x22), tb(0x33))

	lines := rep.Rows[2].Lines
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Cells[0].Word.Class != "mask" {
		t.Errorf("line 0 = %+v, want mask", lines[0].Cells[0].Word)
	}
}

func TestRenderDeterministic(t *testing.T) {
	build := func() []*traceBuilder {
		return []*traceBuilder{
			new(traceBuilder).section(trace.KindTest, []byte("<quad>")).gpuaddr(0x1000, 4).param(trace.ParamBlitX, 17, 14).cmdstream(0x1000, 17<<14, 0x12003400),
			new(traceBuilder).section(trace.KindTest, []byte("<quad>")).gpuaddr(0x2000, 4).param(trace.ParamBlitX, 19, 14).cmdstream(0x2000, 19<<14, 0x12009902),
		}
	}
	render := func() string {
		c := New(Options{Title: "quad"})
		for i, tb := range build() {
			c.Add(string(rune('a'+i))+".rd", bytes.NewReader(tb.buf.Bytes()))
		}
		var out bytes.Buffer
		if err := c.Run(&out); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return out.String()
	}

	first, second := render(), render()
	if first != second {
		t.Error("two runs produced different HTML")
	}
	if !strings.Contains(first, "&lt;quad&gt;") {
		t.Error("text cells should be escaped")
	}
	if !strings.Contains(first, `<span class="m">12</span>`) {
		t.Error("missing matched byte span")
	}
}
