// Fdtrace-decode prints a human-readable listing of an Adreno trace file.
//
// It walks every section of a .rd trace, decodes the captured command
// streams packet by packet, follows indirect buffers through the captured
// buffer snapshots and names registers from the built-in register database.
//
// Usage:
//
//	fdtrace-decode [flags] FILE
//
// See 'fdtrace-decode --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/config"
	"github.com/muurk/fdtrace/internal/decode"
	"github.com/muurk/fdtrace/internal/logging"
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

// Decode flags
var (
	verbose     bool
	summary     bool
	dumpShaders string
	colorMode   string
	maxDepth    int
	gpuID       uint32
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "fdtrace-decode [flags] FILE",
	Short: "Decode an Adreno command stream trace",
	Long: `Decode a .rd trace captured from the KGSL driver.

Every section is printed in order. Command streams are decoded packet by
packet, indirect buffers are followed through the buffer snapshots stored in
the trace, and register writes are named using the register set matching
the GPU_ID section (or --gpu-id).

Defaults are read from the fdtrace configuration file; flags override it.`,
	Example: `  # Decode a trace
  fdtrace-decode clear-color.rd

  # Only draws and indirect buffer traversal
  fdtrace-decode --summary clear-color.rd

  # Dump shader binaries into ./shaders and force colour
  fdtrace-decode --dump-shaders --color always clear-color.rd | less -R

  # Decode a trace that has no GPU_ID section
  fdtrace-decode --gpu-id 320 old.rd`,
	Version:       version.Version,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	RunE: runDecode,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")

	f := rootCmd.Flags()
	f.BoolVarP(&verbose, "verbose", "v", false, "Print raw packet dwords and buffer contents")
	f.BoolVarP(&summary, "summary", "s", false, "Suppress per-register detail")
	f.StringVar(&dumpShaders, "dump-shaders", "", "Write shader binaries to numbered files in DIR")
	f.Lookup("dump-shaders").NoOptDefVal = "shaders"
	f.StringVar(&colorMode, "color", "auto", "Colourise output (auto, always, never)")
	f.IntVar(&maxDepth, "max-depth", decode.DefaultMaxDepth, "Maximum indirect buffer nesting")
	f.Uint32Var(&gpuID, "gpu-id", 0, "GPU id to assume until a GPU_ID section is seen")

	rootCmd.AddCommand(versionCmd)
}

// decodeOptions merges the configuration file with the flags the user set.
func decodeOptions(cmd *cobra.Command) (decode.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return decode.Options{}, err
	}
	opts, err := cfg.DecodeOptions()
	if err != nil {
		return opts, err
	}

	f := cmd.Flags()
	if f.Changed("verbose") {
		opts.Verbose = verbose
	}
	if f.Changed("summary") {
		opts.Summary = summary
	}
	if f.Changed("dump-shaders") {
		opts.DumpShaders = true
		opts.ShaderDir = dumpShaders
	}
	if f.Changed("color") {
		mode, err := decode.ParseColorMode(colorMode)
		if err != nil {
			return opts, err
		}
		opts.Color = mode
	}
	if f.Changed("max-depth") {
		opts.MaxDepth = maxDepth
	}
	if f.Changed("gpu-id") {
		opts.GPUID = gpuID
	}
	opts.Out = cmd.OutOrStdout()
	return opts, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	opts, err := decodeOptions(cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	dec, err := decode.New(opts)
	if err != nil {
		return err
	}
	logging.Debug("Decoding trace", zap.String("path", args[0]), zap.Bool("summary", opts.Summary))

	if err := dec.Decode(f); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Tool("fdtrace-decode"))
	},
}
