package capture

import (
	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/trace"
)

// bookkeeper is the built-in hook: it maintains the registry and
// descriptor table and emits trace sections. It runs with the session
// lock held.
type bookkeeper struct {
	s *Session
}

func (k bookkeeper) Before(c *Call) {
	switch c.Op {
	case OpMmap:
		k.beforeMmap(c)
	case OpMunmap:
		k.beforeMunmap(c)
	case OpFree:
		k.beforeFree(c)
	case OpSubmit:
		k.beforeSubmit(c)
	}
}

func (k bookkeeper) After(c *Call) {
	switch c.Op {
	case OpOpen:
		if c.Err == nil && c.Device != DeviceNone {
			k.s.fds[c.FD] = c.Device
			logging.Info("Tracking device",
				zap.String("path", c.Path),
				zap.Int("fd", c.FD),
				zap.String("class", c.Device.String()),
			)
		}
	case OpClose:
		if c.Err == nil {
			delete(k.s.fds, c.FD)
		}
	case OpMmap:
		k.afterMmap(c)
	case OpAlloc:
		k.afterAlloc(c)
	case OpSubmit:
		k.s.pause()
	case OpQuery:
		k.afterQuery(c)
	case OpIoctl:
		if c.Device.Submits() {
			logging.Debug("Unhandled device ioctl",
				zap.String("request", IoctlName(c.Request)),
				zap.Error(c.Err),
			)
		}
	}
}

// mmapTarget finds the buffer an mmap offset refers to: first as an
// allocation id (offset >> PageShift), then as a gpu address.
func (k bookkeeper) mmapTarget(offset int64) *Buffer {
	if offset < 0 {
		return nil
	}
	if b := k.s.registry.ByID(uint32(offset >> PageShift)); b != nil {
		return b
	}
	return k.s.registry.ByAddr(uint64(offset))
}

func (k bookkeeper) beforeMmap(c *Call) {
	if !c.Device.Submits() {
		return
	}
	b := k.mmapTarget(c.Offset)
	if b == nil {
		return
	}
	c.Buffer = b
	if b.Mapping != nil {
		m := b.Mapping
		if c.Length > 0 && c.Length < len(m) {
			m = m[:c.Length]
		}
		c.Mapping = m
		c.Skip = true
		b.LazyUnmapped = false
		logging.Debug("Reusing buffer mapping", b.fields()...)
	}
}

func (k bookkeeper) afterMmap(c *Call) {
	b := c.Buffer
	if b == nil || c.Skip || c.Err != nil {
		return
	}
	k.s.registry.SetHostMapping(b, c.Mapping)
	if !b.KnownLength() {
		k.s.registry.SetLength(b, uint32(len(c.Mapping)))
	}
}

func (k bookkeeper) beforeMunmap(c *Call) {
	b := k.s.registry.ByMapping(c.Mapping)
	if b == nil {
		return
	}
	c.Buffer = b
	c.Skip = true
	b.LazyUnmapped = true
	logging.Debug("Deferring unmap until free", b.fields()...)
}

func (k bookkeeper) afterAlloc(c *Call) {
	if c.Err != nil {
		return
	}
	reg := k.s.registry
	var b *Buffer

	switch c.Request {
	case IoctlGpumemAlloc:
		a := (*GpumemAlloc)(c.Arg)
		b = reg.Register(Buffer{GPUAddr: uint64(a.GPUAddr), Length: uint32(a.Size)})
	case IoctlGpumemAllocID:
		a := (*GpumemAllocID)(c.Arg)
		if b = reg.ByID(a.ID); b != nil {
			reg.SetGPUAddr(b, uint64(a.GPUAddr), a.Size)
		} else {
			b = reg.Register(Buffer{ID: a.ID, GPUAddr: uint64(a.GPUAddr), Length: a.Size})
		}
	case IoctlSharedmemFromVmalloc:
		a := (*SharedmemFromVmalloc)(c.Arg)
		host := uintptr(a.HostPtr)
		length, err := k.s.platform.RegionSize(host)
		if err != nil {
			logging.Warn("Cannot infer vmalloc buffer length",
				logging.Hex("hostptr", uint64(host)),
				zap.Error(err),
			)
			length = UnknownLength
		}
		b = reg.Register(Buffer{HostPtr: host, GPUAddr: uint64(a.GPUAddr), Length: length})
	case IoctlMapUserMem:
		a := (*MapUserMem)(c.Arg)
		b = reg.Register(Buffer{HostPtr: a.HostPtr, GPUAddr: uint64(a.GPUAddr), Length: uint32(a.Len)})
	default:
		return
	}
	c.Buffer = b

	length := b.Length
	if !b.KnownLength() {
		length = 0
	}
	k.s.emit(trace.KindGPUAddr, trace.AddrRange{GPUAddr: uint32(b.GPUAddr), Length: length}.Encode())
}

func (k bookkeeper) beforeFree(c *Call) {
	reg := k.s.registry
	var b *Buffer
	switch c.Request {
	case IoctlSharedmemFree:
		b = reg.ByAddr(uint64((*SharedmemFree)(c.Arg).GPUAddr))
	case IoctlGpumemFreeID:
		b = reg.ByID((*GpumemFreeID)(c.Arg).ID)
	}
	if b == nil {
		logging.Debug("Free of untracked buffer", zap.String("request", IoctlName(c.Request)))
		return
	}
	c.Buffer = b
	if err := reg.Unregister(b); err != nil {
		logging.Warn("Failed to release freed buffer", zap.Error(err))
	}
}

func (k bookkeeper) beforeSubmit(c *Call) {
	s := k.s
	cmds := (*RingbufferIssueIBCmds)(c.Arg)

	k.dumpBuffers()

	if cmds.Flags&ContextSubmitIBList != 0 {
		for _, ib := range ibDescs(s.platform.Peek, cmds.IBDescAddr, int(cmds.NumIBs)) {
			s.emit(trace.KindCmdstreamAddr, trace.AddrRange{
				GPUAddr: uint32(ib.GPUAddr),
				Length:  uint32(ib.SizeDwords),
			}.Encode())
		}
	} else {
		// Without the list flag the descriptor address is the IB itself and
		// numibs its size in dwords.
		s.emit(trace.KindCmdstreamAddr, trace.AddrRange{
			GPUAddr: uint32(cmds.IBDescAddr),
			Length:  cmds.NumIBs,
		}.Encode())
	}

	if s.opts.EmulateGPUID != 0 {
		s.timestamp++
		cmds.Timestamp = s.timestamp
		c.Skip = true
		logging.Debug("Submission suppressed for emulated device", zap.Uint32("timestamp", s.timestamp))
	}
	s.pause()
}

// dumpBuffers writes GPUADDR + BUFFER_CONTENTS for every live buffer whose
// contents can be read.
func (k bookkeeper) dumpBuffers() {
	s := k.s
	for _, b := range s.registry.Live() {
		if b.GPUAddr == 0 || !b.KnownLength() || b.Length == 0 {
			continue
		}
		var data []byte
		switch {
		case b.Mapping != nil:
			data = b.Mapping
			if uint32(len(data)) > b.Length {
				data = data[:b.Length]
			}
		case b.HostPtr != 0:
			data = s.platform.Peek(b.HostPtr, int(b.Length))
		default:
			continue
		}
		s.emit(trace.KindGPUAddr, trace.AddrRange{GPUAddr: uint32(b.GPUAddr), Length: uint32(len(data))}.Encode())
		s.emit(trace.KindBufferContents, data)
	}
}

func (k bookkeeper) afterQuery(c *Call) {
	s := k.s
	if c.Err != nil {
		return
	}
	prop := (*DeviceGetProperty)(c.Arg)
	if prop.Type != PropDeviceInfo {
		return
	}
	info := devInfo(s.platform.Peek, prop)
	if info == nil {
		logging.Warn("DEVICE_INFO result too small", zap.Uint32("size", prop.SizeBytes))
		return
	}
	if s.opts.EmulateGPUID != 0 {
		logging.Info("Emulating gpu id",
			zap.Uint32("real", info.GPUID),
			zap.Uint32("emulated", s.opts.EmulateGPUID),
		)
		info.GPUID = s.opts.EmulateGPUID
		info.ChipID = ChipIDForGPU(s.opts.EmulateGPUID)
	}
	if s.opts.GmemSize != 0 {
		info.GmemSizeBytes = uintptr(s.opts.GmemSize)
	}
	s.emit(trace.KindGPUID, trace.EncodeGPUID(info.GPUID))
	s.gpuID = info.GPUID
}
