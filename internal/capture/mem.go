package capture

import "unsafe"

// sliceAddr returns the address of the first byte of b, or 0 for an empty
// slice.
func sliceAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// peek returns n bytes of this process's memory starting at addr. The
// slice aliases the memory; writes are visible to the owner.
func peek(addr uintptr, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
