package capture

import (
	"bytes"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/muurk/fdtrace/internal/trace"
)

// fakePlatform emulates just enough of a KGSL device for the bookkeeping.
type fakePlatform struct {
	nextFD   int
	nextAddr uintptr
	nextID   uint32
	gpuID    uint32
	regions  map[uintptr]uint32

	mmaps    int
	munmaps  int
	submits  int
	requests []uint
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		nextFD:   10,
		nextAddr: 0x66000000,
		gpuID:    220,
		regions:  make(map[uintptr]uint32),
	}
}

func (f *fakePlatform) Open(path string, flags int, mode uint32) (int, error) {
	fd := f.nextFD
	f.nextFD++
	return fd, nil
}

func (f *fakePlatform) Close(fd int) error { return nil }

func (f *fakePlatform) Mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	f.mmaps++
	return make([]byte, length), nil
}

func (f *fakePlatform) Munmap(b []byte) error {
	f.munmaps++
	return nil
}

func (f *fakePlatform) alloc(size uintptr) uintptr {
	addr := f.nextAddr
	f.nextAddr += (size + 0xfff) &^ 0xfff
	return addr
}

func (f *fakePlatform) Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	f.requests = append(f.requests, req)
	switch req {
	case IoctlGpumemAlloc:
		a := (*GpumemAlloc)(arg)
		a.GPUAddr = f.alloc(a.Size)
	case IoctlGpumemAllocID:
		a := (*GpumemAllocID)(arg)
		f.nextID++
		a.ID = f.nextID
		a.MmapSize = a.Size
		a.GPUAddr = f.alloc(uintptr(a.Size))
	case IoctlSharedmemFromVmalloc:
		a := (*SharedmemFromVmalloc)(arg)
		a.GPUAddr = f.alloc(0x10000)
	case IoctlMapUserMem:
		a := (*MapUserMem)(arg)
		a.GPUAddr = f.alloc(a.Len)
	case IoctlSharedmemFree, IoctlGpumemFreeID:
	case IoctlRingbufferIssueIBCmds:
		f.submits++
		(*RingbufferIssueIBCmds)(arg).Timestamp = 1000
	case IoctlDeviceGetProperty:
		p := (*DeviceGetProperty)(arg)
		if p.Type == PropDeviceInfo {
			info := (*DevInfo)(unsafe.Pointer(p.Value))
			info.GPUID = f.gpuID
			info.ChipID = ChipIDForGPU(f.gpuID)
			info.GmemSizeBytes = 256 << 10
		}
	default:
		return errors.New("unsupported request")
	}
	return nil
}

func (f *fakePlatform) Peek(addr uintptr, n int) []byte { return peek(addr, n) }

func (f *fakePlatform) RegionSize(addr uintptr) (uint32, error) {
	if size, ok := f.regions[addr]; ok {
		return size, nil
	}
	return 0, errors.New("not mapped")
}

type memSink struct {
	bytes.Buffer
	syncs  int
	closed bool
}

func (m *memSink) Sync() error {
	m.syncs++
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

type sinkSet struct {
	sinks map[string]*memSink
	order []string
}

func (ss *sinkSet) factory(name string) (Sink, error) {
	m := &memSink{}
	ss.sinks[name] = m
	ss.order = append(ss.order, name)
	return m, nil
}

func newTestSession(t *testing.T, opts Options) (*Session, *fakePlatform, *sinkSet) {
	t.Helper()
	p := newFakePlatform()
	s := NewSession(p, opts)
	ss := &sinkSet{sinks: make(map[string]*memSink)}
	s.SetSinkFactory(ss.factory)
	s.sleep = func(time.Duration) {}
	return s, p, ss
}

func sectionsOf(t *testing.T, m *memSink) []*trace.Section {
	t.Helper()
	sections, err := trace.ReadAll(bytes.NewReader(m.Bytes()))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return sections
}

func kindsOf(sections []*trace.Section) []trace.Kind {
	kinds := make([]trace.Kind, len(sections))
	for i, s := range sections {
		kinds[i] = s.Kind
	}
	return kinds
}

func equalKinds(a, b []trace.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func openGPU(t *testing.T, s *Session) int {
	t.Helper()
	fd, err := s.Open("/dev/kgsl-3d0", 0, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return fd
}

func allocID(t *testing.T, s *Session, fd int, size uint32) *GpumemAllocID {
	t.Helper()
	a := &GpumemAllocID{Size: size}
	if err := s.Ioctl(fd, IoctlGpumemAllocID, unsafe.Pointer(a)); err != nil {
		t.Fatalf("GPUMEM_ALLOC_ID error = %v", err)
	}
	return a
}

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		path string
		want DeviceClass
	}{
		{path: "/dev/kgsl-3d0", want: DeviceKGSL3D},
		{path: "/dev/kgsl-2d0", want: DeviceKGSL2D},
		{path: "/dev/kgsl-2d1", want: DeviceKGSL2D},
		{path: "/dev/fb0", want: DeviceDisplay},
		{path: "/dev/graphics/fb0", want: DeviceDisplay},
		{path: "/dev/null", want: DeviceNone},
	}
	for _, tt := range tests {
		if got := ClassifyPath(tt.path); got != tt.want {
			t.Errorf("ClassifyPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAllocEmitsGPUAddr(t *testing.T) {
	s, _, ss := newTestSession(t, DefaultOptions())
	fd := openGPU(t, s)

	a := &GpumemAlloc{Size: 0x1000}
	if err := s.Ioctl(fd, IoctlGpumemAlloc, unsafe.Pointer(a)); err != nil {
		t.Fatalf("Ioctl() error = %v", err)
	}

	sink, ok := ss.sinks["trace"]
	if !ok {
		t.Fatal("default trace was not opened")
	}
	sections := sectionsOf(t, sink)
	if len(sections) != 1 || sections[0].Kind != trace.KindGPUAddr {
		t.Fatalf("sections = %v, want one GPUADDR", kindsOf(sections))
	}
	got, _ := trace.DecodeAddrRange(sections[0])
	want := trace.AddrRange{GPUAddr: uint32(a.GPUAddr), Length: 0x1000}
	if got != want {
		t.Errorf("GPUADDR = %+v, want %+v", got, want)
	}
	if s.Registry().ByAddr(uint64(a.GPUAddr)) == nil {
		t.Error("allocation not registered")
	}
}

func TestSubmitIBList(t *testing.T) {
	s, p, ss := newTestSession(t, DefaultOptions())
	if err := s.StartTest("quad"); err != nil {
		t.Fatalf("StartTest() error = %v", err)
	}
	fd := openGPU(t, s)
	a := allocID(t, s, fd, 0x100)

	m, err := s.Mmap(fd, int64(a.ID)<<PageShift, 0x100, 0, 0)
	if err != nil {
		t.Fatalf("Mmap() error = %v", err)
	}
	for i := range m {
		m[i] = 0xaa
	}

	descs := []IBDesc{{GPUAddr: a.GPUAddr, SizeDwords: 4}}
	cmds := &RingbufferIssueIBCmds{
		IBDescAddr: uintptr(unsafe.Pointer(&descs[0])),
		NumIBs:     1,
		Flags:      ContextSubmitIBList,
	}
	if err := s.Ioctl(fd, IoctlRingbufferIssueIBCmds, unsafe.Pointer(cmds)); err != nil {
		t.Fatalf("submit error = %v", err)
	}
	runtime.KeepAlive(descs)

	if p.submits != 1 {
		t.Errorf("platform submits = %d, want 1", p.submits)
	}
	if cmds.Timestamp != 1000 {
		t.Errorf("Timestamp = %d, want 1000", cmds.Timestamp)
	}

	sections := sectionsOf(t, ss.sinks["quad"])
	want := []trace.Kind{
		trace.KindTest,
		trace.KindGPUAddr,
		trace.KindGPUAddr,
		trace.KindBufferContents,
		trace.KindCmdstreamAddr,
	}
	if !equalKinds(kindsOf(sections), want) {
		t.Fatalf("sections = %v, want %v", kindsOf(sections), want)
	}
	if !bytes.Equal(sections[3].Payload, bytes.Repeat([]byte{0xaa}, 0x100)) {
		t.Error("BUFFER_CONTENTS does not match the mapping")
	}
	ib, _ := trace.DecodeAddrRange(sections[4])
	if ib.GPUAddr != uint32(a.GPUAddr) || ib.Length != 4 {
		t.Errorf("CMDSTREAM_ADDR = %+v", ib)
	}
}

func TestSubmitSingleIB(t *testing.T) {
	s, _, ss := newTestSession(t, DefaultOptions())
	fd := openGPU(t, s)

	cmds := &RingbufferIssueIBCmds{IBDescAddr: 0x66001000, NumIBs: 12}
	if err := s.Ioctl(fd, IoctlRingbufferIssueIBCmds, unsafe.Pointer(cmds)); err != nil {
		t.Fatalf("submit error = %v", err)
	}

	sections := sectionsOf(t, ss.sinks["trace"])
	if len(sections) != 1 {
		t.Fatalf("sections = %v, want one CMDSTREAM_ADDR", kindsOf(sections))
	}
	ib, _ := trace.DecodeAddrRange(sections[0])
	if ib != (trace.AddrRange{GPUAddr: 0x66001000, Length: 12}) {
		t.Errorf("CMDSTREAM_ADDR = %+v", ib)
	}
}

func TestLazyUnmap(t *testing.T) {
	s, p, _ := newTestSession(t, DefaultOptions())
	fd := openGPU(t, s)
	a := allocID(t, s, fd, 0x1000)
	offset := int64(a.ID) << PageShift

	m1, err := s.Mmap(fd, offset, 0x1000, 0, 0)
	if err != nil {
		t.Fatalf("Mmap() error = %v", err)
	}
	if err := s.Munmap(m1); err != nil {
		t.Fatalf("Munmap() error = %v", err)
	}
	if p.munmaps != 0 {
		t.Fatalf("tracked mapping was unmapped eagerly")
	}
	b := s.Registry().ByID(a.ID)
	if !b.LazyUnmapped {
		t.Error("buffer not marked lazily unmapped")
	}

	m2, err := s.Mmap(fd, offset, 0x1000, 0, 0)
	if err != nil {
		t.Fatalf("second Mmap() error = %v", err)
	}
	if sliceAddr(m1) != sliceAddr(m2) || p.mmaps != 1 {
		t.Errorf("remap did not reuse the mapping (mmaps = %d)", p.mmaps)
	}

	free := &GpumemFreeID{ID: a.ID}
	if err := s.Ioctl(fd, IoctlGpumemFreeID, unsafe.Pointer(free)); err != nil {
		t.Fatalf("free error = %v", err)
	}
	if p.munmaps != 1 {
		t.Errorf("munmaps after free = %d, want 1", p.munmaps)
	}
	if s.Registry().Len() != 0 {
		t.Errorf("Registry().Len() = %d after free", s.Registry().Len())
	}
}

func TestUntrackedMunmapPassesThrough(t *testing.T) {
	s, p, _ := newTestSession(t, DefaultOptions())
	if err := s.Munmap(make([]byte, 16)); err != nil {
		t.Fatalf("Munmap() error = %v", err)
	}
	if p.munmaps != 1 {
		t.Errorf("munmaps = %d, want 1", p.munmaps)
	}
}

func TestMmapLookupPrecedence(t *testing.T) {
	s, _, _ := newTestSession(t, DefaultOptions())
	fd := openGPU(t, s)

	// Offset 0x1000 is both id 1 and gpu address 0x1000.
	byAddr := s.Registry().Register(Buffer{GPUAddr: 0x1000, Length: 0x1000})
	byID := s.Registry().Register(Buffer{ID: 1, GPUAddr: 0x80000, Length: 0x1000})

	if _, err := s.Mmap(fd, 0x1000, 0x1000, 0, 0); err != nil {
		t.Fatalf("Mmap() error = %v", err)
	}
	if byID.Mapping == nil {
		t.Error("id lookup should win")
	}
	if byAddr.Mapping != nil {
		t.Error("gpu address lookup should not be used when an id matches")
	}

	if _, err := s.Mmap(fd, 0x2000000, 0x1000, 0, 0); err != nil {
		t.Fatalf("Mmap() error = %v", err)
	}
	other := s.Registry().Register(Buffer{GPUAddr: 0x3000000, Length: 0x1000})
	if _, err := s.Mmap(fd, 0x3000000, 0x1000, 0, 0); err != nil {
		t.Fatalf("Mmap() error = %v", err)
	}
	if other.Mapping == nil {
		t.Error("gpu address lookup should apply when no id matches")
	}
}

func TestSafeMode(t *testing.T) {
	opts := DefaultOptions()
	opts.Safe = true
	opts.SafePause = 5 * time.Millisecond
	s, _, ss := newTestSession(t, opts)

	var pauses []time.Duration
	s.sleep = func(d time.Duration) { pauses = append(pauses, d) }

	fd := openGPU(t, s)
	allocID(t, s, fd, 0x100)
	cmds := &RingbufferIssueIBCmds{IBDescAddr: 0x66000000, NumIBs: 4}
	if err := s.Ioctl(fd, IoctlRingbufferIssueIBCmds, unsafe.Pointer(cmds)); err != nil {
		t.Fatalf("submit error = %v", err)
	}

	sink := ss.sinks["trace"]
	if sink.syncs != s.SectionsWritten() {
		t.Errorf("syncs = %d, sections = %d", sink.syncs, s.SectionsWritten())
	}
	if len(pauses) != 2 {
		t.Fatalf("pauses = %v, want 2", pauses)
	}
	for _, d := range pauses {
		if d != 5*time.Millisecond {
			t.Errorf("pause = %v, want 5ms", d)
		}
	}
}

func TestEmulatedIdentity(t *testing.T) {
	opts := DefaultOptions()
	opts.EmulateGPUID = 320
	opts.GmemSize = 512 << 10
	s, p, ss := newTestSession(t, opts)
	fd := openGPU(t, s)

	var info DevInfo
	prop := &DeviceGetProperty{
		Type:      PropDeviceInfo,
		Value:     uintptr(unsafe.Pointer(&info)),
		SizeBytes: uint32(unsafe.Sizeof(info)),
	}
	if err := s.Ioctl(fd, IoctlDeviceGetProperty, unsafe.Pointer(prop)); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if info.GPUID != 320 || info.ChipID != 0x03020000 {
		t.Errorf("devinfo gpu_id = %d chip_id = 0x%08x", info.GPUID, info.ChipID)
	}
	if info.GmemSizeBytes != 512<<10 {
		t.Errorf("gmem size = %d, want %d", info.GmemSizeBytes, 512<<10)
	}
	if s.GPUID() != 320 {
		t.Errorf("GPUID() = %d, want 320", s.GPUID())
	}

	cmds := &RingbufferIssueIBCmds{IBDescAddr: 0x66000000, NumIBs: 4}
	if err := s.Ioctl(fd, IoctlRingbufferIssueIBCmds, unsafe.Pointer(cmds)); err != nil {
		t.Fatalf("submit error = %v", err)
	}
	if p.submits != 0 {
		t.Errorf("real submission issued under emulation")
	}
	if cmds.Timestamp != 1 {
		t.Errorf("synthetic timestamp = %d, want 1", cmds.Timestamp)
	}

	sections := sectionsOf(t, ss.sinks["trace"])
	id, err := trace.DecodeGPUID(sections[0])
	if err != nil || id != 320 {
		t.Errorf("GPU_ID section = %d, %v", id, err)
	}
}

func TestStartTestRepeatsGPUID(t *testing.T) {
	s, _, ss := newTestSession(t, DefaultOptions())
	fd := openGPU(t, s)

	var info DevInfo
	prop := &DeviceGetProperty{
		Type:      PropDeviceInfo,
		Value:     uintptr(unsafe.Pointer(&info)),
		SizeBytes: uint32(unsafe.Sizeof(info)),
	}
	if err := s.Ioctl(fd, IoctlDeviceGetProperty, unsafe.Pointer(prop)); err != nil {
		t.Fatalf("query error = %v", err)
	}

	if err := s.StartTest("second"); err != nil {
		t.Fatalf("StartTest() error = %v", err)
	}
	s.Annotate("glClear")
	s.Param(trace.ParamColor, 0xff0000ff, 32)
	s.Flush()
	if err := s.EndTest(); err != nil {
		t.Fatalf("EndTest() error = %v", err)
	}

	if !ss.sinks["trace"].closed {
		t.Error("default trace not closed by StartTest")
	}
	want := []trace.Kind{trace.KindTest, trace.KindGPUID, trace.KindCmd, trace.KindParam, trace.KindFlush}
	got := kindsOf(sectionsOf(t, ss.sinks["second"]))
	if !equalKinds(got, want) {
		t.Errorf("sections = %v, want %v", got, want)
	}
}

func TestVmallocUnknownLength(t *testing.T) {
	s, p, ss := newTestSession(t, DefaultOptions())
	fd := openGPU(t, s)

	known := &SharedmemFromVmalloc{HostPtr: 0x7000}
	p.regions[0x7000] = 0x2000
	if err := s.Ioctl(fd, IoctlSharedmemFromVmalloc, unsafe.Pointer(known)); err != nil {
		t.Fatalf("ioctl error = %v", err)
	}
	unknown := &SharedmemFromVmalloc{HostPtr: 0x9000}
	if err := s.Ioctl(fd, IoctlSharedmemFromVmalloc, unsafe.Pointer(unknown)); err != nil {
		t.Fatalf("ioctl error = %v", err)
	}

	if b := s.Registry().ByAddr(uint64(known.GPUAddr)); b == nil || b.Length != 0x2000 {
		t.Errorf("inferred buffer = %+v", b)
	}
	if b := s.Registry().ByAddr(uint64(unknown.GPUAddr)); b == nil || b.KnownLength() {
		t.Errorf("uninferable buffer = %+v, want UnknownLength", b)
	}

	sections := sectionsOf(t, ss.sinks["trace"])
	last, _ := trace.DecodeAddrRange(sections[len(sections)-1])
	if last.Length != 0 {
		t.Errorf("GPUADDR length for unknown buffer = %d, want 0", last.Length)
	}
}

func TestSharedmemFree(t *testing.T) {
	s, _, _ := newTestSession(t, DefaultOptions())
	fd := openGPU(t, s)

	a := &GpumemAlloc{Size: 0x800}
	if err := s.Ioctl(fd, IoctlGpumemAlloc, unsafe.Pointer(a)); err != nil {
		t.Fatalf("alloc error = %v", err)
	}
	free := &SharedmemFree{GPUAddr: a.GPUAddr}
	if err := s.Ioctl(fd, IoctlSharedmemFree, unsafe.Pointer(free)); err != nil {
		t.Fatalf("free error = %v", err)
	}
	if s.Registry().Len() != 0 {
		t.Errorf("Registry().Len() = %d after free", s.Registry().Len())
	}
}

func TestUntaggedDescriptorPassesThrough(t *testing.T) {
	s, p, ss := newTestSession(t, DefaultOptions())
	fd, err := s.Open("/dev/null", 0, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var ops []Op
	s.AddHook(HookFuncs{BeforeFunc: func(c *Call) { ops = append(ops, c.Op) }})

	a := &GpumemAlloc{Size: 0x1000}
	if err := s.Ioctl(fd, IoctlGpumemAlloc, unsafe.Pointer(a)); err != nil {
		t.Fatalf("Ioctl() error = %v", err)
	}
	if len(p.requests) != 1 {
		t.Errorf("request not forwarded")
	}
	if len(ops) != 1 || ops[0] != OpIoctl {
		t.Errorf("ops = %v, want [ioctl]", ops)
	}
	if len(ss.sinks) != 0 || s.Registry().Len() != 0 {
		t.Error("untagged descriptor produced bookkeeping")
	}
}

func TestShaderRejectsOtherKinds(t *testing.T) {
	s, _, _ := newTestSession(t, DefaultOptions())
	if err := s.Shader(trace.KindCmd, "x"); err == nil {
		t.Error("Shader() accepted a CMD section")
	}
	if err := s.Shader(trace.KindFragShader, "void main() {}"); err != nil {
		t.Errorf("Shader() error = %v", err)
	}
}

func TestShutdownReleasesMappings(t *testing.T) {
	s, p, _ := newTestSession(t, DefaultOptions())
	fd := openGPU(t, s)
	a := allocID(t, s, fd, 0x1000)
	if _, err := s.Mmap(fd, int64(a.ID)<<PageShift, 0x1000, 0, 0); err != nil {
		t.Fatalf("Mmap() error = %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if p.munmaps != 1 {
		t.Errorf("munmaps = %d, want 1", p.munmaps)
	}
}

// reusingPlatform hands out the lowest free descriptor, like the kernel.
type reusingPlatform struct {
	open map[int]bool
}

func (p *reusingPlatform) Open(path string, flags int, mode uint32) (int, error) {
	for fd := 3; ; fd++ {
		if !p.open[fd] {
			p.open[fd] = true
			return fd, nil
		}
	}
}

func (p *reusingPlatform) Close(fd int) error {
	delete(p.open, fd)
	return nil
}

func (p *reusingPlatform) Mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	return make([]byte, length), nil
}

func (p *reusingPlatform) Munmap(b []byte) error                            { return nil }
func (p *reusingPlatform) Ioctl(fd int, req uint, arg unsafe.Pointer) error { return nil }
func (p *reusingPlatform) Peek(addr uintptr, n int) []byte                  { return nil }
func (p *reusingPlatform) RegionSize(addr uintptr) (uint32, error)          { return 0, ErrUnsupported }

func TestDeviceLookupUnderSessionLock(t *testing.T) {
	const rounds = 2000
	s := NewSession(&reusingPlatform{open: make(map[int]bool)}, Options{OutputDir: t.TempDir()})
	defer s.Shutdown()

	// view mirrors the descriptor table as the hooks observe it. Hooks run
	// under the session lock, so it needs no lock of its own.
	view := make(map[int]DeviceClass)
	var calls, mismatches int
	s.AddHook(HookFuncs{
		BeforeFunc: func(c *Call) {
			if c.Op == OpIoctl || c.Op == OpMmap || c.Op == OpClose {
				calls++
				if c.Device != view[c.FD] {
					mismatches++
				}
			}
		},
		AfterFunc: func(c *Call) {
			switch c.Op {
			case OpOpen:
				view[c.FD] = c.Device
			case OpClose:
				delete(view, c.FD)
			}
		},
	})

	fd, err := s.Open("/dev/kgsl-3d0", 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = s.Ioctl(fd, 0x1234, nil)
			_, _ = s.Mmap(fd, 0, 16, 0, 0)
		}
	}()
	go func() {
		defer wg.Done()
		paths := []string{"/dev/null", "/dev/kgsl-3d0"}
		for i := 0; i < rounds; i++ {
			_ = s.Close(fd)
			if _, err := s.Open(paths[i%2], 0, 0); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	if calls == 0 {
		t.Fatal("hook saw no calls")
	}
	if mismatches != 0 {
		t.Errorf("%d of %d calls carried a stale device class", mismatches, calls)
	}
}
