// Package collector receives traces streamed over websocket by capture
// sessions running on another machine, typically the device under test,
// and writes them as ordinary .rd files.
//
// # Protocol
//
// A capture session dials ws://host:port/trace?name=NAME. Every binary
// message carries exactly one encoded section. A TEST section closes the
// current file and opens a new one named after the test; sections that
// arrive before any TEST go to NAME.rd. Text messages are logged and
// otherwise ignored.
//
// # Discovery
//
// Collectors advertise themselves over mDNS as "_fdtrace._tcp" so a
// device can find one without configuration:
//
//	srv, err := collector.Advertise("lab-bench", 9190, nil)
//	defer srv.Shutdown()
//
//	found, err := collector.NewBrowser().Browse(ctx)
//	for _, c := range found {
//	    fmt.Println(c.URL())
//	}
package collector
