package capture

import (
	"fmt"
	"unsafe"
)

// Op names an intercepted operation.
type Op int

// Intercepted operations.
const (
	OpOpen Op = iota
	OpClose
	OpMmap
	OpMunmap
	OpSubmit
	OpAlloc
	OpFree
	OpQuery
	OpIoctl
)

var opNames = [...]string{
	OpOpen:   "open",
	OpClose:  "close",
	OpMmap:   "mmap",
	OpMunmap: "munmap",
	OpSubmit: "submit",
	OpAlloc:  "alloc",
	OpFree:   "free",
	OpQuery:  "query",
	OpIoctl:  "ioctl",
}

func (o Op) String() string {
	if int(o) >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Call describes one intercepted operation as it passes through the hooks.
// Fields not relevant to Op are zero.
type Call struct {
	Op     Op
	FD     int
	Device DeviceClass

	// open
	Path  string
	Flags int
	Mode  uint32

	// ioctl
	Request uint
	Arg     unsafe.Pointer

	// mmap / munmap
	Offset  int64
	Length  int
	Prot    int
	Mapping []byte

	// Buffer is the registration the bookkeeping resolved for this call.
	Buffer *Buffer

	// Skip, when set by a Before hook, suppresses the real call.
	Skip bool

	// Err is the result of the real call.
	Err error
}

// Hook observes intercepted calls. Before runs with the request fields
// filled in; After runs once the real call has returned (or was skipped).
// Hooks run with the Session lock held and must not block on other
// goroutines.
type Hook interface {
	Before(c *Call)
	After(c *Call)
}

// HookFuncs adapts a pair of functions to Hook. Either may be nil.
type HookFuncs struct {
	BeforeFunc func(c *Call)
	AfterFunc  func(c *Call)
}

// Before implements Hook.
func (h HookFuncs) Before(c *Call) {
	if h.BeforeFunc != nil {
		h.BeforeFunc(c)
	}
}

// After implements Hook.
func (h HookFuncs) After(c *Call) {
	if h.AfterFunc != nil {
		h.AfterFunc(c)
	}
}
