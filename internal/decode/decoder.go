package decode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/regdb"
	"github.com/muurk/fdtrace/internal/trace"
)

// ErrRecursion is reported (not returned) when indirect buffers nest too
// deeply or form a cycle.
var ErrRecursion = errors.New("indirect buffer recursion")

// Decoder renders trace sections as text. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	opts Options
	out  *bufio.Writer
	st   styles

	db    *regdb.Database
	regs  regdb.Resolver
	gen   string
	gpuID uint32

	buffers trace.Snapshots
	pending *trace.AddrRange
	state   *RegisterState

	opcodes  map[uint32]opHandler
	regHooks map[uint32]regHook

	visited map[uint32]bool
	depth   int

	unresolved int
	files      int
	draws      int
	sections   int
	err        error
}

// New creates a decoder.
func New(opts Options) (*Decoder, error) {
	opts = opts.withDefaults()
	db, err := regdb.Load()
	if err != nil {
		return nil, err
	}
	if opts.DumpShaders {
		if err := os.MkdirAll(opts.ShaderDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create shader directory: %w", err)
		}
	}

	d := &Decoder{
		opts:    opts,
		out:     bufio.NewWriter(opts.Out),
		st:      newStyles(opts.Out, opts.Color),
		db:      db,
		regs:    regdb.Generic{},
		state:   NewRegisterState(),
		opcodes: newDispatch(),
		visited: make(map[uint32]bool),
	}
	if opts.GPUID != 0 {
		d.selectGPU(opts.GPUID)
	}
	return d, nil
}

// Unresolved returns how many gpu addresses could not be resolved against
// the buffer snapshots.
func (d *Decoder) Unresolved() int {
	return d.unresolved
}

// Draws returns the number of draw packets decoded.
func (d *Decoder) Draws() int {
	return d.draws
}

// State returns the register state.
func (d *Decoder) State() *RegisterState {
	return d.state
}

// Decode reads every section of r and writes the listing. It stops at the
// end of the stream or at the first structural error.
func (d *Decoder) Decode(r io.Reader) error {
	rd := trace.NewReader(r)
	for {
		sect, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			d.flush()
			return fmt.Errorf("section %d: %w", rd.Count()+1, err)
		}
		if err := d.Section(sect); err != nil {
			d.flush()
			return err
		}
	}

	if d.unresolved > 0 {
		d.printf(0, "%s", d.st.warn.Render(fmt.Sprintf("%d unresolved gpu addresses", d.unresolved)))
		logging.Warn("Unresolved gpu addresses", zap.Int("count", d.unresolved))
	}
	logging.Info("Trace decoded",
		zap.Int("sections", d.sections),
		zap.Int("draws", d.draws),
		zap.Int("unresolved", d.unresolved),
	)
	return d.flush()
}

// Section decodes one section.
func (d *Decoder) Section(s *trace.Section) error {
	d.sections++
	logging.LogSection("read", s.Kind.String(), len(s.Payload))

	if s.Kind != trace.KindBufferContents && s.Kind != trace.KindGPUAddr {
		d.pending = nil
	}

	switch s.Kind {
	case trace.KindTest:
		d.buffers.Reset()
		d.pending = nil
		d.printf(0, "%s", d.st.header.Render("test: "+trace.Text(s)))

	case trace.KindCmd:
		d.printf(0, "%s", d.st.section.Render("cmd: "+trace.Text(s)))

	case trace.KindGPUAddr:
		ar, err := trace.DecodeAddrRange(s)
		if err != nil {
			d.malformed(s, err)
			break
		}
		d.pending = &ar
		d.printf(0, "gpuaddr: %s (len 0x%x)", d.st.addr.Render(fmt.Sprintf("0x%08x", ar.GPUAddr)), ar.Length)

	case trace.KindBufferContents:
		d.bufferContents(s)

	case trace.KindContext:
		d.printf(0, "context: %d bytes", len(s.Payload))
		if d.opts.Verbose {
			d.hexdump(0, 0, trace.BytesToDwords(s.Payload))
		}

	case trace.KindCmdstream:
		words := s.Dwords()
		d.printf(0, "%s", d.st.section.Render(fmt.Sprintf("cmdstream: %d dwords", len(words))))
		d.dumpCommands(words, 0, 1)

	case trace.KindCmdstreamAddr:
		ar, err := trace.DecodeAddrRange(s)
		if err != nil {
			d.malformed(s, err)
			break
		}
		d.cmdstreamAddr(ar)

	case trace.KindVertShader, trace.KindFragShader:
		label := "vertex shader"
		if s.Kind == trace.KindFragShader {
			label = "fragment shader"
		}
		d.printf(0, "%s", d.st.section.Render(label+":"))
		for _, line := range strings.Split(strings.TrimRight(trace.Text(s), "\n"), "\n") {
			d.printf(1, "%s", line)
		}

	case trace.KindProgram:
		d.printf(0, "program: %d bytes", len(s.Payload))
		d.writeFile("prog", s.Payload)

	case trace.KindParam:
		p, err := trace.DecodeParam(s)
		if err != nil {
			d.malformed(s, err)
			break
		}
		d.printf(0, "param: %s", p)

	case trace.KindFlush:
		d.printf(0, "flush")

	case trace.KindGPUID:
		id, err := trace.DecodeGPUID(s)
		if err != nil {
			d.malformed(s, err)
			break
		}
		d.selectGPU(id)
		d.printf(0, "gpu id: %d (%s)", id, d.gen)

	case trace.KindNone:

	default:
		logging.Warn("Skipping unknown section",
			zap.String("kind", s.Kind.String()),
			zap.Int("size", len(s.Payload)),
		)
		d.printf(0, "%s", d.st.muted.Render(fmt.Sprintf("skipped %s: %d bytes", s.Kind, len(s.Payload))))
	}
	return d.err
}

// malformed reports a section whose payload could not be decoded and lets
// the listing continue with the next section.
func (d *Decoder) malformed(s *trace.Section, err error) {
	d.pending = nil
	logging.Warn("Skipping malformed section",
		zap.String("kind", s.Kind.String()),
		zap.Int("size", len(s.Payload)),
		zap.Error(err),
	)
	d.printf(0, "%s", d.st.warn.Render(fmt.Sprintf("malformed %s: %v", s.Kind, err)))
	if d.opts.Verbose {
		d.hexdump(1, 0, trace.BytesToDwords(s.Payload))
	}
}

func (d *Decoder) bufferContents(s *trace.Section) {
	if d.pending == nil {
		logging.Warn("BUFFER_CONTENTS without preceding GPUADDR", zap.Int("size", len(s.Payload)))
		d.printf(0, "%s", d.st.warn.Render(fmt.Sprintf("orphan buffer contents: %d bytes", len(s.Payload))))
		return
	}
	ar := *d.pending
	d.pending = nil

	data := s.Payload
	if ar.Length != 0 && uint32(len(data)) > ar.Length {
		data = data[:ar.Length]
	}
	d.buffers.Add(ar.GPUAddr, data)
	d.printf(0, "buffer contents: %d bytes", len(data))
	if d.opts.Verbose {
		d.hexdump(1, ar.GPUAddr, trace.BytesToDwords(data))
	}
}

func (d *Decoder) cmdstreamAddr(ar trace.AddrRange) {
	d.printf(0, "%s", d.st.section.Render(fmt.Sprintf("cmdstream: %d dwords at gpuaddr 0x%08x", ar.Length, ar.GPUAddr)))
	data, ok := d.buffers.Lookup(ar.GPUAddr, ar.Length*4)
	if !ok {
		d.unresolvedAddr(1, ar.GPUAddr)
		return
	}
	words := trace.BytesToDwords(data)
	if uint32(len(words)) < ar.Length {
		d.printf(1, "%s", d.st.warn.Render(fmt.Sprintf("only %d of %d dwords captured", len(words), ar.Length)))
	}
	d.visited[ar.GPUAddr] = true
	d.dumpCommands(words, ar.GPUAddr, 1)
	delete(d.visited, ar.GPUAddr)
}

// selectGPU switches the register database generation.
func (d *Decoder) selectGPU(id uint32) {
	d.gpuID = id
	gen := d.db.ForGPU(id)
	if gen == nil {
		d.regs = regdb.Generic{}
		d.gen = "generic"
	} else {
		d.regs = gen
		d.gen = gen.Family
	}
	d.regHooks = newRegHooks(d.regs)
	logging.Debug("Register database selected",
		zap.Uint32("gpu_id", id),
		zap.String("generation", d.gen),
	)
}

func (d *Decoder) resolve(addr, size uint32) ([]byte, bool) {
	data, ok := d.buffers.Lookup(addr, size)
	if !ok {
		return nil, false
	}
	return data, true
}

func (d *Decoder) unresolvedAddr(level int, addr uint32) {
	d.unresolved++
	logging.Debug("Unresolved gpu address", logging.Hex("gpuaddr", uint64(addr)))
	d.printf(level, "%s", d.st.warn.Render(fmt.Sprintf("unresolved gpuaddr 0x%08x", addr)))
}

// writeFile writes a shader or program binary as NNNN.<ext> when shader
// dumping is enabled.
func (d *Decoder) writeFile(ext string, data []byte) {
	if !d.opts.DumpShaders {
		return
	}
	name := filepath.Join(d.opts.ShaderDir, fmt.Sprintf("%04d.%s", d.files, ext))
	d.files++
	if err := os.WriteFile(name, data, 0o644); err != nil {
		logging.Error("Failed to write shader file", zap.String("path", name), zap.Error(err))
		return
	}
	d.printf(1, "wrote %s", name)
}

func (d *Decoder) printf(level int, format string, args ...any) {
	if d.err != nil {
		return
	}
	if _, err := d.out.WriteString(strings.Repeat("\t", level)); err != nil {
		d.err = err
		return
	}
	if _, err := fmt.Fprintf(d.out, format, args...); err != nil {
		d.err = err
		return
	}
	if err := d.out.WriteByte('\n'); err != nil {
		d.err = err
	}
}

// hexdump prints dwords four per line, prefixed with their gpu address.
func (d *Decoder) hexdump(level int, addr uint32, words []uint32) {
	for i := 0; i < len(words); i += 4 {
		end := i + 4
		if end > len(words) {
			end = len(words)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%08x:", addr+uint32(i*4))
		for _, w := range words[i:end] {
			fmt.Fprintf(&b, " %08x", w)
		}
		d.printf(level, "%s", d.st.muted.Render(b.String()))
	}
}

func (d *Decoder) flush() error {
	if err := d.out.Flush(); err != nil && d.err == nil {
		d.err = err
	}
	return d.err
}
