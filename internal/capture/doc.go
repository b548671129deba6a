// Package capture records a GPU driver's conversation with the KGSL kernel
// device into a trace.
//
// A Session sits between the driver and the operating system. Every
// open, close, mmap, munmap and ioctl issued on a GPU device descriptor is
// routed through Session, which keeps a Registry of live GPU buffers and
// writes trace sections describing allocations, buffer contents and
// command submissions to a Sink.
//
// The operating system itself is reached through the Platform interface.
// On Linux it is backed by golang.org/x/sys/unix; tests substitute a fake.
//
// Basic usage:
//
//	s := capture.NewSession(capture.NewPlatform(), opts)
//	defer s.Close()
//	s.StartTest("clear-color")
//	fd, _ := s.Open("/dev/kgsl-3d0", unix.O_RDWR, 0)
//	...
//	s.EndTest()
package capture
