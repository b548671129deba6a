// Fdtrace-probe exercises the capture layer against a real KGSL device.
//
// It opens the GPU device through a capture session, queries the device
// information, allocates and frees a small GPU buffer and writes the result
// as a trace. It is a smoke test for the capture path on a new device, not
// a replacement for capturing a real application.
//
// Usage:
//
//	fdtrace-probe [--device /dev/kgsl-3d0] [--name probe]
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/capture"
	"github.com/muurk/fdtrace/internal/config"
	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/ui"
	"github.com/muurk/fdtrace/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Flags
var (
	devicePath string
	testName   string
	allocSize  uint32
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "fdtrace-probe",
	Short: "Smoke test the capture layer on a KGSL device",
	Long: `Open the GPU device through a capture session and record a short trace.

The probe reports the GPU id, chip id and gmem size seen through the
capture layer (after any FDTRACE_GPU_ID / FDTRACE_GMEM_SIZE emulation) and
writes a trace containing the GPU_ID section and a buffer allocation.

Capture settings come from the configuration file and the FDTRACE_*
environment variables.`,
	Example: `  # Probe the default device
  fdtrace-probe

  # Stream the probe trace to a collector
  FDTRACE_SINK=ws://10.0.0.2:9190/trace fdtrace-probe --name bringup`,
	Version:       version.Version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	RunE: runProbe,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")

	rootCmd.Flags().StringVar(&devicePath, "device", "/dev/kgsl-3d0", "KGSL device node")
	rootCmd.Flags().StringVar(&testName, "name", "probe", "Test name written to the trace")
	rootCmd.Flags().Uint32Var(&allocSize, "alloc", 4096, "Size of the test buffer allocation in bytes (0 skips it)")

	rootCmd.AddCommand(versionCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts, err := cfg.CaptureOptions(os.LookupEnv)
	if err != nil {
		return err
	}

	s := capture.NewSession(capture.NewPlatform(), opts)
	defer func() {
		if err := s.Shutdown(); err != nil {
			logging.Warn("Failed to close trace", zap.Error(err))
		}
	}()

	if err := s.StartTest(testName); err != nil {
		return err
	}

	fmt.Println(ui.NewHeader("Capture probe", "fdtrace-probe",
		ui.Field{Key: "Device", Value: fmt.Sprintf("%s (%s)", devicePath, capture.ClassifyPath(devicePath))},
		ui.Field{Key: "Test", Value: testName},
	))

	prog := newDeviceProgress(devicePath)
	res, err := queryDevice(s, devicePath, allocSize, prog)
	fmt.Println(prog)
	fmt.Println()
	if err != nil {
		fmt.Println(ui.NewFailureResult("Device query failed", err,
			"Check that the device node exists and is readable by this user",
			"On Android the node is usually only accessible to the graphics group",
			"Set FDTRACE_LOG_LEVEL=debug to see every intercepted call",
		))
		return err
	}

	result := ui.NewSuccessResult("Device query complete",
		ui.Field{Key: "GPU id", Value: fmt.Sprintf("%d", res.info.GPUID)},
		ui.Field{Key: "Chip id", Value: fmt.Sprintf("0x%08x", res.info.ChipID)},
		ui.Field{Key: "Gmem", Value: fmt.Sprintf("%d KiB at 0x%x", res.info.GmemSizeBytes>>10, res.info.GmemGPUBase)},
		ui.Field{Key: "MMU", Value: fmt.Sprintf("%v", res.info.MMUEnabled != 0)},
	)
	if res.allocated {
		result.AddField("Allocation", fmt.Sprintf("id %d at gpu 0x%x", res.allocID, res.allocAddr))
	}
	result.AddField("Sections", fmt.Sprintf("%d written", s.SectionsWritten()))
	fmt.Println(result)
	return nil
}

// Steps of queryDevice, in order.
const (
	stepOpen = iota + 1
	stepInfo
	stepAlloc
	stepFree
	stepClose
)

func newDeviceProgress(path string) *ui.Progress {
	return ui.NewProgress("Querying "+path+"...",
		"Open device",
		"Query device info",
		"Allocate buffer",
		"Free buffer",
		"Close device",
	)
}

// deviceReport is what queryDevice observed through the session.
type deviceReport struct {
	info      capture.DevInfo
	allocated bool
	allocID   uint32
	allocAddr uintptr
}

// queryDevice drives one open/query/alloc/free/close sequence through s,
// recording each step in prog.
func queryDevice(s *capture.Session, path string, size uint32, prog *ui.Progress) (res *deviceReport, err error) {
	prog.StartStep(stepOpen, "")
	fd, err := s.Open(path, os.O_RDWR, 0)
	if err != nil {
		prog.FailStep(stepOpen, err.Error())
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	prog.CompleteStep(stepOpen, fmt.Sprintf("fd %d", fd))

	defer func() {
		prog.StartStep(stepClose, "")
		if cerr := s.Close(fd); cerr != nil {
			prog.FailStep(stepClose, cerr.Error())
			if err == nil {
				res, err = nil, fmt.Errorf("failed to close %s: %w", path, cerr)
			}
			return
		}
		prog.CompleteStep(stepClose, "")
	}()

	res = &deviceReport{}
	prog.StartStep(stepInfo, "")
	prop := capture.DeviceGetProperty{
		Type:      capture.PropDeviceInfo,
		Value:     uintptr(unsafe.Pointer(&res.info)),
		SizeBytes: uint32(unsafe.Sizeof(res.info)),
	}
	if err := s.Ioctl(fd, capture.IoctlDeviceGetProperty, unsafe.Pointer(&prop)); err != nil {
		prog.FailStep(stepInfo, err.Error())
		return nil, fmt.Errorf("device info query failed: %w", err)
	}
	prog.CompleteStep(stepInfo, fmt.Sprintf("gpu %d", res.info.GPUID))
	logging.Info("Device info",
		zap.Uint32("gpu_id", res.info.GPUID),
		logging.Hex("chip_id", uint64(res.info.ChipID)),
	)

	if size == 0 {
		prog.SkipStep(stepAlloc, "size 0")
		prog.SkipStep(stepFree, "")
		return res, nil
	}
	prog.StartStep(stepAlloc, "")
	alloc := capture.GpumemAllocID{Size: size}
	if err := s.Ioctl(fd, capture.IoctlGpumemAllocID, unsafe.Pointer(&alloc)); err != nil {
		prog.FailStep(stepAlloc, err.Error())
		return nil, fmt.Errorf("buffer allocation failed: %w", err)
	}
	prog.CompleteStep(stepAlloc, fmt.Sprintf("%d bytes", size))
	res.allocated = true
	res.allocID = alloc.ID
	res.allocAddr = alloc.GPUAddr

	prog.StartStep(stepFree, "")
	free := capture.GpumemFreeID{ID: alloc.ID}
	if err := s.Ioctl(fd, capture.IoctlGpumemFreeID, unsafe.Pointer(&free)); err != nil {
		prog.FailStep(stepFree, err.Error())
		logging.Warn("Failed to free buffer", zap.Uint32("id", alloc.ID), zap.Error(err))
		return res, nil
	}
	prog.CompleteStep(stepFree, fmt.Sprintf("id %d", alloc.ID))
	return res, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Tool("fdtrace-probe"))
	},
}
