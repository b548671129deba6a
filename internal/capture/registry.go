package capture

import (
	"sort"

	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
)

// UnknownLength marks a buffer whose size could not be determined.
const UnknownLength = ^uint32(0)

// Buffer is one tracked GPU allocation. Any of its keys may be zero while
// the kernel has not yet reported it.
type Buffer struct {
	HostPtr      uintptr
	Mapping      []byte
	GPUAddr      uint64
	Length       uint32
	Handle       uint32
	ID           uint32
	LazyUnmapped bool
}

// KnownLength reports whether the buffer size is known.
func (b *Buffer) KnownLength() bool {
	return b.Length != UnknownLength
}

// gpuEnd returns the exclusive end of the gpu range. A buffer of unknown
// length covers only its base address.
func (b *Buffer) gpuEnd() uint64 {
	if !b.KnownLength() || b.Length == 0 {
		return b.GPUAddr + 1
	}
	return b.GPUAddr + uint64(b.Length)
}

// ContainsAddr reports whether addr falls inside the buffer's gpu range.
func (b *Buffer) ContainsAddr(addr uint64) bool {
	return b.GPUAddr != 0 && addr >= b.GPUAddr && addr < b.gpuEnd()
}

func (b *Buffer) hostLen() uint64 {
	if b.Mapping != nil {
		return uint64(len(b.Mapping))
	}
	if !b.KnownLength() || b.Length == 0 {
		return 1
	}
	return uint64(b.Length)
}

// ContainsPtr reports whether p falls inside the buffer's host range.
func (b *Buffer) ContainsPtr(p uintptr) bool {
	return b.HostPtr != 0 && p >= b.HostPtr && uint64(p-b.HostPtr) < b.hostLen()
}

func (b *Buffer) overlaps(o *Buffer) bool {
	if b.GPUAddr == 0 || o.GPUAddr == 0 {
		return false
	}
	return b.GPUAddr < o.gpuEnd() && o.GPUAddr < b.gpuEnd()
}

func (b *Buffer) fields() []zap.Field {
	return []zap.Field{
		logging.Hex("gpuaddr", b.GPUAddr),
		logging.Hex("hostptr", uint64(b.HostPtr)),
		zap.Uint32("length", b.Length),
		zap.Uint32("id", b.ID),
		zap.Uint32("handle", b.Handle),
	}
}

// Unmapper releases a host mapping owned by the registry.
type Unmapper interface {
	Munmap(b []byte) error
}

// Registry tracks live GPU buffers and translates between host pointers and
// gpu addresses.
//
// Live gpu ranges never overlap: a registration or update that collides with
// an existing range evicts the older buffer. Registry is not synchronised;
// the owning Session serialises access.
type Registry struct {
	bufs     []*Buffer
	unmapper Unmapper
}

// NewRegistry creates an empty registry. u may be nil when buffers never
// own mappings.
func NewRegistry(u Unmapper) *Registry {
	return &Registry{unmapper: u}
}

// Register adds a buffer and returns the tracked copy.
func (r *Registry) Register(b Buffer) *Buffer {
	nb := &b
	r.evictOverlaps(nb)
	r.bufs = append(r.bufs, nb)
	logging.Debug("Buffer registered", nb.fields()...)
	return nb
}

// SetGPUAddr records the gpu range of b once the kernel has assigned it.
func (r *Registry) SetGPUAddr(b *Buffer, addr uint64, length uint32) {
	b.GPUAddr = addr
	b.Length = length
	r.evictOverlaps(b)
}

// SetLength updates the size of b.
func (r *Registry) SetLength(b *Buffer, length uint32) {
	b.Length = length
	r.evictOverlaps(b)
}

// SetHostMapping records a host mapping owned by b.
func (r *Registry) SetHostMapping(b *Buffer, m []byte) {
	b.Mapping = m
	b.HostPtr = sliceAddr(m)
	b.LazyUnmapped = false
}

func (r *Registry) evictOverlaps(nb *Buffer) {
	kept := r.bufs[:0]
	for _, b := range r.bufs {
		if b != nb && b.overlaps(nb) {
			logging.Warn("Evicting stale buffer overlapping new range",
				append(b.fields(), logging.Hex("new_gpuaddr", nb.GPUAddr))...)
			r.release(b)
			continue
		}
		kept = append(kept, b)
	}
	for i := len(kept); i < len(r.bufs); i++ {
		r.bufs[i] = nil
	}
	r.bufs = kept
}

// Unregister removes b and releases its host mapping, if any. Removing a
// buffer that is not tracked is a no-op.
func (r *Registry) Unregister(b *Buffer) error {
	for i, cur := range r.bufs {
		if cur == b {
			r.bufs = append(r.bufs[:i], r.bufs[i+1:]...)
			logging.Debug("Buffer unregistered", b.fields()...)
			return r.release(b)
		}
	}
	return nil
}

func (r *Registry) release(b *Buffer) error {
	if b.Mapping == nil {
		return nil
	}
	m := b.Mapping
	b.Mapping = nil
	b.HostPtr = 0
	if r.unmapper == nil {
		return nil
	}
	if err := r.unmapper.Munmap(m); err != nil {
		logging.Warn("Failed to release buffer mapping", zap.Error(err))
		return err
	}
	return nil
}

// Reset drops every buffer, releasing owned mappings.
func (r *Registry) Reset() {
	for _, b := range r.bufs {
		r.release(b)
	}
	r.bufs = nil
}

// ByID returns the buffer with kernel id.
func (r *Registry) ByID(id uint32) *Buffer {
	if id == 0 {
		return nil
	}
	for _, b := range r.bufs {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// ByHandle returns the buffer with handle h.
func (r *Registry) ByHandle(h uint32) *Buffer {
	if h == 0 {
		return nil
	}
	for _, b := range r.bufs {
		if b.Handle == h {
			return b
		}
	}
	return nil
}

// ByAddr returns the buffer whose gpu range contains addr.
func (r *Registry) ByAddr(addr uint64) *Buffer {
	if addr == 0 {
		return nil
	}
	for _, b := range r.bufs {
		if b.ContainsAddr(addr) {
			return b
		}
	}
	return nil
}

// ByPtr returns the buffer whose host range contains p.
func (r *Registry) ByPtr(p uintptr) *Buffer {
	if p == 0 {
		return nil
	}
	for _, b := range r.bufs {
		if b.ContainsPtr(p) {
			return b
		}
	}
	return nil
}

// ByMapping returns the buffer owning the mapping that starts at m.
func (r *Registry) ByMapping(m []byte) *Buffer {
	p := sliceAddr(m)
	if p == 0 {
		return nil
	}
	for _, b := range r.bufs {
		if b.Mapping != nil && b.HostPtr == p {
			return b
		}
	}
	return nil
}

// ResolveByAddr translates a gpu address into the host pointer and offset
// of the containing buffer.
func (r *Registry) ResolveByAddr(addr uint64) (uintptr, uint64, bool) {
	b := r.ByAddr(addr)
	if b == nil || b.HostPtr == 0 {
		return 0, 0, false
	}
	off := addr - b.GPUAddr
	return b.HostPtr + uintptr(off), off, true
}

// ResolveByPtr translates a host pointer into the gpu address and offset of
// the containing buffer.
func (r *Registry) ResolveByPtr(p uintptr) (uint64, uint64, bool) {
	b := r.ByPtr(p)
	if b == nil || b.GPUAddr == 0 {
		return 0, 0, false
	}
	off := uint64(p - b.HostPtr)
	return b.GPUAddr + off, off, true
}

// Live returns the tracked buffers ordered by gpu address.
func (r *Registry) Live() []*Buffer {
	out := make([]*Buffer, len(r.bufs))
	copy(out, r.bufs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].GPUAddr < out[j].GPUAddr })
	return out
}

// Len returns the number of tracked buffers.
func (r *Registry) Len() int {
	return len(r.bufs)
}
