//go:build linux

package capture

import (
	"fmt"
	"unsafe"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

type linuxPlatform struct{}

// NewPlatform returns the platform shim of the running system.
func NewPlatform() Platform {
	return linuxPlatform{}
}

func (linuxPlatform) Open(path string, flags int, mode uint32) (int, error) {
	return unix.Open(path, flags, mode)
}

func (linuxPlatform) Close(fd int) error {
	return unix.Close(fd)
}

func (linuxPlatform) Mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	return unix.Mmap(fd, offset, length, prot, flags)
}

func (linuxPlatform) Munmap(b []byte) error {
	return unix.Munmap(b)
}

func (linuxPlatform) Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (linuxPlatform) Peek(addr uintptr, n int) []byte {
	return peek(addr, n)
}

func (linuxPlatform) RegionSize(addr uintptr) (uint32, error) {
	proc, err := procfs.Self()
	if err != nil {
		return 0, fmt.Errorf("failed to open /proc/self: %w", err)
	}
	maps, err := proc.ProcMaps()
	if err != nil {
		return 0, fmt.Errorf("failed to read memory maps: %w", err)
	}
	for _, m := range maps {
		if addr >= m.StartAddr && addr < m.EndAddr {
			return uint32(m.EndAddr - addr), nil
		}
	}
	return 0, fmt.Errorf("address 0x%x is not mapped", addr)
}
