package capture

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/trace"
)

// Session is one capture context: the buffer registry, the descriptor
// table and the active trace writer, guarded by a single lock that is held
// for the whole pre+post of every intercepted call.
type Session struct {
	mu       sync.Mutex
	platform Platform
	registry *Registry
	opts     Options
	sinks    SinkFactory
	hooks    []Hook

	fds  map[int]DeviceClass
	sink Sink
	w    *trace.Writer
	test string

	gpuID     uint32
	timestamp uint32
	written   int
	sleep     func(time.Duration)
}

// NewSession creates a capture session over platform p.
func NewSession(p Platform, opts Options) *Session {
	if opts.DefaultName == "" {
		opts.DefaultName = "trace"
	}
	if opts.Safe && opts.SafePause == 0 {
		opts.SafePause = DefaultSafePause
	}
	s := &Session{
		platform: p,
		registry: NewRegistry(p),
		opts:     opts,
		sinks:    opts.Sinks(),
		fds:      make(map[int]DeviceClass),
		sleep:    time.Sleep,
	}
	s.hooks = []Hook{bookkeeper{s}}
	return s
}

// SetSinkFactory replaces the factory used to open trace sinks.
func (s *Session) SetSinkFactory(f SinkFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = f
}

// AddHook registers an extra hook. Hooks run in registration order after
// the built-in bookkeeping.
func (s *Session) AddHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Registry returns the buffer registry. Callers must not use it
// concurrently with intercepted calls.
func (s *Session) Registry() *Registry {
	return s.registry
}

// GPUID returns the gpu id last reported by the device, or 0.
func (s *Session) GPUID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gpuID
}

// SectionsWritten returns the number of sections written so far.
func (s *Session) SectionsWritten() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// run passes c through the hooks around the real call. Calls on an
// existing descriptor take their device class, and for submitting devices
// their ioctl op, from the descriptor table inside the same critical
// section as the hooks.
func (s *Session) run(c *Call, real func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Op != OpOpen && c.FD >= 0 {
		c.Device = s.fds[c.FD]
		if c.Op == OpIoctl && c.Device.Submits() {
			c.Op = classifyIoctl(c.Request)
		}
	}

	logging.LogHook("pre", c.Op.String(), c.FD, zap.String("device", c.Device.String()))
	for _, h := range s.hooks {
		h.Before(c)
	}
	if !c.Skip {
		c.Err = real()
	}
	for _, h := range s.hooks {
		h.After(c)
	}
	logging.LogHook("post", c.Op.String(), c.FD,
		zap.Bool("skipped", c.Skip),
		zap.Error(c.Err),
	)
	return c.Err
}

// Open opens path, tagging the descriptor when it is a known GPU or
// display device.
func (s *Session) Open(path string, flags int, mode uint32) (int, error) {
	c := &Call{Op: OpOpen, FD: -1, Path: path, Flags: flags, Mode: mode, Device: ClassifyPath(path)}
	err := s.run(c, func() error {
		fd, err := s.platform.Open(path, flags, mode)
		c.FD = fd
		return err
	})
	return c.FD, err
}

// Close closes fd.
func (s *Session) Close(fd int) error {
	c := &Call{Op: OpClose, FD: fd}
	return s.run(c, func() error {
		return s.platform.Close(fd)
	})
}

// Mmap maps a buffer of device fd. For a GPU buffer that already owns a
// host mapping the existing mapping is returned.
func (s *Session) Mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	c := &Call{Op: OpMmap, FD: fd, Offset: offset, Length: length, Prot: prot, Flags: flags}
	err := s.run(c, func() error {
		m, err := s.platform.Mmap(fd, offset, length, prot, flags)
		c.Mapping = m
		return err
	})
	return c.Mapping, err
}

// Munmap unmaps b. Mappings owned by tracked buffers stay alive until the
// buffer is freed.
func (s *Session) Munmap(b []byte) error {
	c := &Call{Op: OpMunmap, FD: -1, Mapping: b}
	return s.run(c, func() error {
		return s.platform.Munmap(b)
	})
}

// Ioctl issues request req on fd with argument arg.
func (s *Session) Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	c := &Call{Op: OpIoctl, FD: fd, Request: req, Arg: arg}
	return s.run(c, func() error {
		return s.platform.Ioctl(fd, req, arg)
	})
}

// StartTest closes the current trace, opens a new one named after the
// test and writes the TEST section.
func (s *Session) StartTest(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(name, true)
}

// EndTest closes the current trace.
func (s *Session) EndTest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endLocked()
}

// Annotate writes a CMD section.
func (s *Session) Annotate(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(trace.KindCmd, []byte(text))
}

// Param writes a PARAM section.
func (s *Session) Param(kind trace.ParamKind, value, bitLen uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(trace.KindParam, trace.Param{Kind: kind, Value: value, BitLen: bitLen}.Encode())
}

// Flush writes a FLUSH section, ending the current batch of params.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(trace.KindFlush, nil)
}

// Shader writes the source of a vertex or fragment shader.
func (s *Session) Shader(kind trace.Kind, src string) error {
	if kind != trace.KindVertShader && kind != trace.KindFragShader {
		return fmt.Errorf("%s is not a shader section", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(kind, []byte(src))
	return nil
}

// Program writes a compiled program blob.
func (s *Session) Program(blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(trace.KindProgram, blob)
}

// Shutdown ends the current test and releases every tracked mapping.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.endLocked()
	s.registry.Reset()
	return err
}

func (s *Session) startLocked(name string, withTest bool) error {
	if err := s.endLocked(); err != nil {
		logging.Warn("Failed to close previous trace", zap.Error(err))
	}
	sink, err := s.sinks(name)
	if err != nil {
		return fmt.Errorf("failed to open trace %q: %w", name, err)
	}
	s.sink = sink
	s.w = trace.NewWriter(sink)
	s.test = name
	logging.Info("Trace started", zap.String("name", name))

	if withTest {
		s.emit(trace.KindTest, []byte(name))
	}
	if s.gpuID != 0 {
		s.emit(trace.KindGPUID, trace.EncodeGPUID(s.gpuID))
	}
	return nil
}

func (s *Session) endLocked() error {
	if s.sink == nil {
		return nil
	}
	err := s.sink.Close()
	logging.Info("Trace closed",
		zap.String("name", s.test),
		zap.Int("sections", s.w.Count()),
	)
	s.sink = nil
	s.w = nil
	s.test = ""
	if err != nil {
		return fmt.Errorf("failed to close trace: %w", err)
	}
	return nil
}

// emit writes one section, opening the default trace if no test is active.
// Write failures are logged and never reach the intercepted call.
func (s *Session) emit(kind trace.Kind, payload []byte) {
	if s.w == nil {
		if err := s.startLocked(s.opts.DefaultName, false); err != nil {
			logging.Error("Dropping section, no trace open",
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
			return
		}
	}
	if err := s.w.WriteSection(kind, payload); err != nil {
		logging.Error("Failed to write section", zap.Error(err))
		return
	}
	s.written++
	logging.LogSection("write", kind.String(), len(payload))

	if s.opts.Safe {
		if err := s.sink.Sync(); err != nil {
			logging.Warn("Failed to sync trace", zap.Error(err))
		}
	}
}

func (s *Session) pause() {
	if s.opts.Safe && s.opts.SafePause > 0 {
		s.sleep(s.opts.SafePause)
	}
}
