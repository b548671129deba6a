//go:build !linux

package capture

import "unsafe"

type otherPlatform struct{}

// NewPlatform returns the platform shim of the running system.
func NewPlatform() Platform {
	return otherPlatform{}
}

func (otherPlatform) Open(path string, flags int, mode uint32) (int, error) {
	return -1, ErrUnsupported
}

func (otherPlatform) Close(fd int) error { return ErrUnsupported }

func (otherPlatform) Mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	return nil, ErrUnsupported
}

func (otherPlatform) Munmap(b []byte) error { return ErrUnsupported }

func (otherPlatform) Ioctl(fd int, req uint, arg unsafe.Pointer) error { return ErrUnsupported }

func (otherPlatform) Peek(addr uintptr, n int) []byte { return peek(addr, n) }

func (otherPlatform) RegionSize(addr uintptr) (uint32, error) { return 0, ErrUnsupported }
