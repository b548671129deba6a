// Package ui renders the banners and result boxes of the fdtrace command
// line tools.
//
// Components follow a "run once and exit" pattern: a Header is printed when
// a command starts and a Result when it finishes. A Progress lists the
// steps of a multi-step command in between. Report output (decoder
// listings, HTML diffs) never goes through this package.
//
// Example:
//
//	fmt.Println(ui.NewHeader("Capture probe", "fdtrace-probe",
//	    ui.Field{Key: "Device", Value: "/dev/kgsl-3d0"}))
//	...
//	fmt.Println(ui.NewSuccessResult("Device query complete",
//	    ui.Field{Key: "GPU id", Value: "320"}))
//
// Logging is controlled separately via FDTRACE_LOG_LEVEL; when unset zap is
// silent and only these components are shown.
package ui
