package capture

import (
	"errors"
	"unsafe"
)

// ErrUnsupported is returned by the platform shim on systems without KGSL.
var ErrUnsupported = errors.New("capture: platform not supported")

// Platform is the thin shim between a Session and the operating system.
type Platform interface {
	Open(path string, flags int, mode uint32) (int, error)
	Close(fd int) error
	Mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error)
	Munmap(b []byte) error
	Ioctl(fd int, req uint, arg unsafe.Pointer) error

	// Peek returns n bytes of process memory at addr. The result aliases
	// the memory.
	Peek(addr uintptr, n int) []byte

	// RegionSize returns the number of bytes from addr to the end of the
	// memory region containing it.
	RegionSize(addr uintptr) (uint32, error)
}
