package capture

import (
	"fmt"
	"unsafe"
)

// Mirrors of the msm_kgsl.h ioctl ABI. Field types follow the C
// declarations (unsigned long and size_t become uintptr) so that the
// structs have the native layout of the running architecture.

// KGSLIocType is the ioctl type byte of every KGSL request.
const KGSLIocType = 0x09

// PageShift converts between mmap offsets and KGSL allocation ids.
const PageShift = 12

// Context flags of RINGBUFFER_ISSUEIBCMDS.
const (
	ContextSubmitIBList = 0x00000004
)

// Property types of DEVICE_GETPROPERTY.
const (
	PropDeviceInfo = 0x1
)

// DeviceGetProperty is struct kgsl_device_getproperty.
type DeviceGetProperty struct {
	Type      uint32
	Value     uintptr
	SizeBytes uint32
}

// DevInfo is struct kgsl_devinfo.
type DevInfo struct {
	DeviceID      uint32
	ChipID        uint32
	MMUEnabled    uint32
	GmemGPUBase   uintptr
	GPUID         uint32
	GmemSizeBytes uintptr
}

// RingbufferIssueIBCmds is struct kgsl_ringbuffer_issueibcmds.
type RingbufferIssueIBCmds struct {
	DrawCtxtID uint32
	IBDescAddr uintptr
	NumIBs     uint32
	Timestamp  uint32
	Flags      uint32
}

// IBDesc is struct kgsl_ibdesc.
type IBDesc struct {
	GPUAddr    uintptr
	HostPtr    uintptr
	SizeDwords uintptr
	Ctrl       uint32
}

// SharedmemFree is struct kgsl_sharedmem_free.
type SharedmemFree struct {
	GPUAddr uintptr
}

// SharedmemFromVmalloc is struct kgsl_sharedmem_from_vmalloc.
type SharedmemFromVmalloc struct {
	GPUAddr uintptr
	HostPtr uint32
	Flags   uint32
}

// MapUserMem is struct kgsl_map_user_mem.
type MapUserMem struct {
	FD      int32
	GPUAddr uintptr
	Len     uintptr
	Offset  uintptr
	HostPtr uintptr
	MemType uint32
	Flags   uint32
}

// GpumemAlloc is struct kgsl_gpumem_alloc.
type GpumemAlloc struct {
	GPUAddr uintptr
	Size    uintptr
	Flags   uint32
}

// GpumemAllocID is struct kgsl_gpumem_alloc_id.
type GpumemAllocID struct {
	ID       uint32
	Flags    uint32
	Size     uint32
	MmapSize uint32
	GPUAddr  uintptr
	_        [2]uint32
}

// GpumemFreeID is struct kgsl_gpumem_free_id.
type GpumemFreeID struct {
	ID uint32
	_  uint32
}

const (
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uint {
	return uint(dir<<30 | size<<16 | KGSLIocType<<8 | nr)
}

// KGSL ioctl request numbers.
var (
	IoctlDeviceGetProperty     = ioc(iocRead|iocWrite, 0x02, unsafe.Sizeof(DeviceGetProperty{}))
	IoctlRingbufferIssueIBCmds = ioc(iocRead|iocWrite, 0x10, unsafe.Sizeof(RingbufferIssueIBCmds{}))
	IoctlMapUserMem            = ioc(iocRead|iocWrite, 0x15, unsafe.Sizeof(MapUserMem{}))
	IoctlSharedmemFree         = ioc(iocWrite, 0x21, unsafe.Sizeof(SharedmemFree{}))
	IoctlSharedmemFromVmalloc  = ioc(iocRead|iocWrite, 0x23, unsafe.Sizeof(SharedmemFromVmalloc{}))
	IoctlGpumemAlloc           = ioc(iocRead|iocWrite, 0x2f, unsafe.Sizeof(GpumemAlloc{}))
	IoctlGpumemAllocID         = ioc(iocRead|iocWrite, 0x34, unsafe.Sizeof(GpumemAllocID{}))
	IoctlGpumemFreeID          = ioc(iocRead|iocWrite, 0x35, unsafe.Sizeof(GpumemFreeID{}))
)

// IoctlNr returns the command number of an ioctl request.
func IoctlNr(req uint) uint {
	return req & 0xff
}

// IoctlType returns the type byte of an ioctl request.
func IoctlType(req uint) uint {
	return (req >> 8) & 0xff
}

// IoctlName names the KGSL requests this package understands.
func IoctlName(req uint) string {
	switch req {
	case IoctlDeviceGetProperty:
		return "DEVICE_GETPROPERTY"
	case IoctlRingbufferIssueIBCmds:
		return "RINGBUFFER_ISSUEIBCMDS"
	case IoctlMapUserMem:
		return "MAP_USER_MEM"
	case IoctlSharedmemFree:
		return "SHAREDMEM_FREE"
	case IoctlSharedmemFromVmalloc:
		return "SHAREDMEM_FROM_VMALLOC"
	case IoctlGpumemAlloc:
		return "GPUMEM_ALLOC"
	case IoctlGpumemAllocID:
		return "GPUMEM_ALLOC_ID"
	case IoctlGpumemFreeID:
		return "GPUMEM_FREE_ID"
	}
	if IoctlType(req) == KGSLIocType {
		return fmt.Sprintf("KGSL_IOCTL_%02x", IoctlNr(req))
	}
	return fmt.Sprintf("IOCTL_%08x", req)
}

// classifyIoctl maps a request onto a hook operation.
func classifyIoctl(req uint) Op {
	switch req {
	case IoctlGpumemAlloc, IoctlGpumemAllocID, IoctlSharedmemFromVmalloc, IoctlMapUserMem:
		return OpAlloc
	case IoctlSharedmemFree, IoctlGpumemFreeID:
		return OpFree
	case IoctlRingbufferIssueIBCmds:
		return OpSubmit
	case IoctlDeviceGetProperty:
		return OpQuery
	default:
		return OpIoctl
	}
}

// ibDescs views n kgsl_ibdesc entries at host address addr.
func ibDescs(mem func(uintptr, int) []byte, addr uintptr, n int) []IBDesc {
	if n <= 0 {
		return nil
	}
	b := mem(addr, n*int(unsafe.Sizeof(IBDesc{})))
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*IBDesc)(unsafe.Pointer(&b[0])), n)
}

// devInfo views the kgsl_devinfo a DEVICE_GETPROPERTY result points at.
func devInfo(mem func(uintptr, int) []byte, prop *DeviceGetProperty) *DevInfo {
	size := int(unsafe.Sizeof(DevInfo{}))
	if prop.Value == 0 || int(prop.SizeBytes) < size {
		return nil
	}
	b := mem(prop.Value, size)
	if len(b) < size {
		return nil
	}
	return (*DevInfo)(unsafe.Pointer(&b[0]))
}

// ChipIDForGPU synthesises a chip id (core.major.minor.patch) for a
// three-digit gpu id such as 320.
func ChipIDForGPU(gpuID uint32) uint32 {
	major := (gpuID / 100) % 10
	minor := (gpuID / 10) % 10
	patch := gpuID % 10
	return major<<24 | minor<<16 | patch<<8
}
