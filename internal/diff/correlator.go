package diff

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/trace"
)

// Defaults for Options.
const (
	DefaultFuzzLimit = 4
	DefaultWindow    = 8
)

// Options configures a Correlator.
type Options struct {
	// FuzzLimit bounds how far ahead an input may be shifted in one
	// alignment step.
	FuzzLimit int

	// Window is the number of dwords scored when choosing offsets.
	Window int

	// Title of the HTML document.
	Title string
}

func (o Options) withDefaults() Options {
	if o.FuzzLimit <= 0 {
		o.FuzzLimit = DefaultFuzzLimit
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Title == "" {
		o.Title = "fdtrace diff"
	}
	return o
}

// Correlator reads N traces in lock-step.
type Correlator struct {
	opts   Options
	inputs []*input

	// scored counts window evaluations made while choosing offsets.
	scored int
}

// New creates a correlator.
func New(opts Options) *Correlator {
	return &Correlator{opts: opts.withDefaults()}
}

// Add appends an input. Name labels its column.
func (c *Correlator) Add(name string, r io.Reader) {
	c.inputs = append(c.inputs, newInput(name, r))
}

// Run correlates the inputs and writes the HTML report to w.
func (c *Correlator) Run(w io.Writer) error {
	rep, err := c.Correlate()
	if err != nil {
		return err
	}
	return Render(w, rep)
}

// Correlate reads every input to the end and returns the report.
func (c *Correlator) Correlate() (*Report, error) {
	if len(c.inputs) == 0 {
		return nil, errors.New("no inputs")
	}

	rep := &Report{Title: c.opts.Title}
	for _, in := range c.inputs {
		rep.Inputs = append(rep.Inputs, in.name)
	}

	for {
		sects, err := c.next()
		if err != nil {
			return nil, err
		}
		kind, err := c.rowKind(len(rep.Rows), sects)
		if err != nil {
			return nil, err
		}
		if finished(sects) {
			break
		}
		row, err := c.row(len(rep.Rows), kind, sects)
		if err != nil {
			return nil, err
		}
		rep.Rows = append(rep.Rows, row)
	}

	logging.Info("Traces correlated",
		zap.Int("inputs", len(c.inputs)),
		zap.Int("rows", len(rep.Rows)),
	)
	return rep, nil
}

// next reads one section from every live input. Inputs at EOF yield nil.
func (c *Correlator) next() ([]*trace.Section, error) {
	sects := make([]*trace.Section, len(c.inputs))
	for i, in := range c.inputs {
		if in.done {
			continue
		}
		s, err := in.rd.Next()
		if errors.Is(err, io.EOF) {
			in.done = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: section %d: %w", in.name, in.rd.Count()+1, err)
		}
		sects[i] = s
	}
	return sects, nil
}

func (c *Correlator) rowKind(row int, sects []*trace.Section) (trace.Kind, error) {
	var kind trace.Kind
	have := false
	mismatch := false
	for _, s := range sects {
		if s == nil {
			continue
		}
		if !have {
			kind, have = s.Kind, true
		} else if s.Kind != kind {
			mismatch = true
		}
	}
	if !mismatch {
		return kind, nil
	}

	fe := &FormatError{Row: row}
	for i, s := range sects {
		if s == nil {
			continue
		}
		fe.Inputs = append(fe.Inputs, c.inputs[i].name)
		fe.Kinds = append(fe.Kinds, s.Kind)
	}
	return 0, fe
}

// finished reports whether every input is at EOF or yielded an empty
// payload. Marker sections such as FLUSH are always empty and do not end
// the session.
func finished(sects []*trace.Section) bool {
	for _, s := range sects {
		if s != nil && (len(s.Payload) > 0 || s.Kind.EmptyByDefinition()) {
			return false
		}
	}
	return true
}

func (c *Correlator) row(idx int, kind trace.Kind, sects []*trace.Section) (Row, error) {
	row := Row{Index: idx, Kind: kind.String(), Cells: make([]Cell, len(c.inputs))}
	dwords := false

	for i, s := range sects {
		in := c.inputs[i]
		cell := &row.Cells[i]
		if s == nil || (len(s.Payload) == 0 && !s.Kind.EmptyByDefinition()) {
			cell.Class = "empty"
			continue
		}
		if kind != trace.KindBufferContents && kind != trace.KindGPUAddr {
			in.pending = nil
		}

		switch kind {
		case trace.KindTest:
			in.buffers.Reset()
			cell.Text = trace.Text(s)

		case trace.KindGPUAddr:
			ar, err := trace.DecodeAddrRange(s)
			if err != nil {
				malformed(cell, in, s, err)
				continue
			}
			in.pending = &ar
			cell.Class = addrClass(in.addAddr(ar.GPUAddr))
			cell.Text = fmt.Sprintf("0x%08x len 0x%x", ar.GPUAddr, ar.Length)

		case trace.KindBufferContents:
			data := s.Payload
			if in.pending != nil {
				if in.pending.Length != 0 && uint32(len(data)) > in.pending.Length {
					data = data[:in.pending.Length]
				}
				in.buffers.Add(in.pending.GPUAddr, data)
				in.pending = nil
			}
			cell.Text = fmt.Sprintf("%d bytes", len(data))

		case trace.KindCmdstream:
			in.words = s.Dwords()
			cell.Text = fmt.Sprintf("%d dwords", len(in.words))
			dwords = true

		case trace.KindCmdstreamAddr:
			ar, err := trace.DecodeAddrRange(s)
			if err != nil {
				malformed(cell, in, s, err)
				continue
			}
			cell.Text = fmt.Sprintf("0x%08x, %d dwords", ar.GPUAddr, ar.Length)
			data, ok := in.buffers.Lookup(ar.GPUAddr, ar.Length*4)
			if !ok {
				cell.Text += " (unresolved)"
				logging.Debug("Unresolved command stream",
					zap.String("input", in.name),
					logging.Hex("gpuaddr", uint64(ar.GPUAddr)),
				)
				continue
			}
			in.words = trace.BytesToDwords(data)
			dwords = true

		case trace.KindParam:
			p, err := trace.DecodeParam(s)
			if err != nil {
				malformed(cell, in, s, err)
				continue
			}
			in.params = append(in.params, p)
			cell.Class = "param"
			cell.Text = p.String()

		case trace.KindFlush:
			in.params = nil
			cell.Text = "flush"

		case trace.KindGPUID:
			id, err := trace.DecodeGPUID(s)
			if err != nil {
				malformed(cell, in, s, err)
				continue
			}
			cell.Text = fmt.Sprintf("%d", id)

		default:
			if kind.IsText() {
				cell.Text = strings.TrimRight(trace.Text(s), "\n")
			} else {
				cell.Text = fmt.Sprintf("%d bytes", len(s.Payload))
			}
		}
	}

	if dwords {
		row.Lines = c.correlateWords()
	}
	return row, nil
}

// malformed turns a section whose payload could not be decoded into a
// warning cell.
func malformed(cell *Cell, in *input, s *trace.Section, err error) {
	logging.Warn("Skipping malformed section",
		zap.String("input", in.name),
		zap.String("kind", s.Kind.String()),
		zap.Error(err),
	)
	in.pending = nil
	cell.Class = "warn"
	cell.Text = err.Error()
}

// correlateWords classifies the current dword rows of every input,
// shifting inputs ahead where that aligns them better with their siblings.
func (c *Correlator) correlateWords() []Line {
	for _, in := range c.inputs {
		in.off = 0
	}

	var lines []Line
	for j := 0; c.remaining(j); j++ {
		line := Line{Index: j, Cells: make([]WordCell, len(c.inputs))}

		if c.needsAlignment(j) {
			if inc := c.searchOffsets(j); inc != nil {
				for i, k := range inc {
					in := c.inputs[i]
					for _, w := range in.words[j+in.off : j+in.off+k] {
						line.Cells[i].Skipped = append(line.Cells[i].Skipped, fmt.Sprintf("%08x", w))
					}
					in.off += k
				}
				logging.Debug("Realigned inputs", zap.Int("index", j), zap.Ints("shift", inc))
			}
		}

		for i, in := range c.inputs {
			if _, ok := in.word(j); ok {
				w := renderWord(c.classify(i, j))
				line.Cells[i].Word = &w
			}
		}
		lines = append(lines, line)
	}

	for _, in := range c.inputs {
		in.words = nil
		in.off = 0
	}
	return lines
}

func (c *Correlator) remaining(j int) bool {
	for _, in := range c.inputs {
		if in.words != nil && j+in.off < len(in.words) {
			return true
		}
	}
	return false
}

// needsAlignment reports whether some input leaves the dword at j
// unclassified.
func (c *Correlator) needsAlignment(j int) bool {
	if len(c.inputs) < 2 {
		return false
	}
	for i, in := range c.inputs {
		if _, ok := in.word(j); ok && c.classify(i, j).Class == ClassPlain {
			return true
		}
	}
	return false
}

// classify applies the priority order address, mask, param, plain to the
// dword of input i at logical index j.
func (c *Correlator) classify(i, j int) Match {
	in := c.inputs[i]
	v, _ := in.word(j)

	if col, ok := in.addrColor[v]; ok {
		return Match{Class: ClassAddress, Value: v, Color: col}
	}

	peers := make([]uint32, 0, len(c.inputs)-1)
	for k, p := range c.inputs {
		if k == i {
			continue
		}
		if w, ok := p.word(j); ok {
			peers = append(peers, w)
		}
	}
	if m, ok := MatchMask(v, peers); ok {
		return Match{Class: ClassMask, Value: v, Mask: m}
	}

	var names []string
	for _, p := range in.params {
		if MatchParam(v, p) {
			names = append(names, p.Kind.String())
		}
	}
	if len(names) > 0 {
		return Match{Class: ClassParam, Value: v, Params: names}
	}
	return Match{Class: ClassPlain, Value: v}
}

// score sums the match weights of every input over the window at j.
func (c *Correlator) score(j int) int {
	c.scored++
	total := 0
	for jj := j; jj < j+c.opts.Window; jj++ {
		for i, in := range c.inputs {
			if _, ok := in.word(jj); ok {
				total += c.classify(i, jj).Weight()
			}
		}
	}
	return total
}

// maxWeight is the largest weight a single classified dword can carry.
const maxWeight = 5

// maxCombinations bounds the exhaustive offset search. Above it offsets
// are chosen one input at a time.
const maxCombinations = 4096

// searchOffsets returns the per-input shifts in [0, FuzzLimit], with at
// least one input moved and one left in place, that best beat the current
// alignment at j, or nil.
func (c *Correlator) searchOffsets(j int) []int {
	limit := c.opts.FuzzLimit
	longest := 0
	for _, in := range c.inputs {
		longest = max(longest, len(in.words))
	}
	limit = min(limit, longest)

	combos := 1
	for range c.inputs {
		combos *= limit + 1
		if combos > maxCombinations {
			return c.greedyOffsets(j, limit)
		}
	}
	return c.exhaustiveOffsets(j, limit)
}

// cells returns how many dwords of input i fall in the window at j when
// it is shifted by inc.
func (c *Correlator) cells(i, j, inc int) int {
	in := c.inputs[i]
	start := j + in.off + inc
	return max(0, min(c.opts.Window, len(in.words)-start))
}

// valid reports whether at least one input is moved and one kept.
func valid(cur []int) bool {
	moved, kept := false, false
	for _, k := range cur {
		if k > 0 {
			moved = true
		} else {
			kept = true
		}
	}
	return moved && kept
}

// scoreShifted scores the window at j with every input shifted by cur.
func (c *Correlator) scoreShifted(j int, cur []int) int {
	for k, in := range c.inputs {
		in.off += cur[k]
	}
	s := c.score(j)
	for k, in := range c.inputs {
		in.off -= cur[k]
	}
	return s
}

// exhaustiveOffsets tries every combination. Ties keep the
// lexicographically smallest one. A branch is dropped once even a perfect
// score over the dwords still in its window cannot beat the best so far.
func (c *Correlator) exhaustiveOffsets(j, limit int) []int {
	n := len(c.inputs)
	bestScore := c.score(j)
	var best []int
	cur := make([]int, n)

	// rest[i] bounds the dwords inputs i..n-1 can contribute.
	rest := make([]int, n+1)
	for i := n - 1; i >= 0; i-- {
		rest[i] = rest[i+1] + c.cells(i, j, 0)
	}

	var walk func(i, fixed int)
	walk = func(i, fixed int) {
		if maxWeight*(fixed+rest[i]) <= bestScore {
			return
		}
		if i == n {
			if !valid(cur) {
				return
			}
			if s := c.scoreShifted(j, cur); s > bestScore {
				bestScore = s
				best = append(best[:0], cur...)
			}
			return
		}
		in := c.inputs[i]
		for inc := 0; inc <= limit; inc++ {
			if inc > 0 && j+in.off+inc >= len(in.words) {
				break
			}
			cur[i] = inc
			walk(i+1, fixed+c.cells(i, j, inc))
		}
		cur[i] = 0
	}
	walk(0, 0)
	return best
}

// greedyOffsets improves one input's shift at a time, keeping the others,
// until a full pass over the inputs finds nothing better.
func (c *Correlator) greedyOffsets(j, limit int) []int {
	n := len(c.inputs)
	bestScore := c.score(j)
	cur := make([]int, n)
	found := false

	for pass := 0; pass < n; pass++ {
		improved := false
		for i, in := range c.inputs {
			keep := cur[i]
			for inc := 0; inc <= limit; inc++ {
				if inc == keep || (inc > 0 && j+in.off+inc >= len(in.words)) {
					continue
				}
				cur[i] = inc
				if valid(cur) {
					if s := c.scoreShifted(j, cur); s > bestScore {
						bestScore, keep = s, inc
						improved, found = true, true
					}
				}
			}
			cur[i] = keep
		}
		if !improved {
			break
		}
	}
	if !found {
		return nil
	}
	logging.Debug("Offsets chosen greedily", zap.Int("index", j), zap.Int("inputs", n))
	return cur
}
