// Fdtrace-diff correlates several traces of the same test and renders the
// differences as an HTML report.
//
// The traces are read in lock step. Command stream dwords are coloured when
// they are buffer addresses, match across traces under a byte mask, or carry
// one of the test parameters recorded in the trace.
//
// Usage:
//
//	fdtrace-diff [flags] FILE... > report.html
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/config"
	"github.com/muurk/fdtrace/internal/diff"
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

// Diff flags
var (
	fuzzLimit int
	window    int
	title     string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "fdtrace-diff [flags] FILE...",
	Short: "Correlate traces of the same test",
	Long: `Read several traces of the same test in lock step and write an HTML
report to stdout.

All traces must contain the same sequence of section kinds. Command stream
dwords that differ only by an offset are realigned by trying small shifts
(--fuzz) and scoring the following --window dwords.`,
	Example: `  # Compare a colour sweep
  fdtrace-diff red.rd green.rd blue.rd > clear.html

  # Allow larger realignment shifts
  fdtrace-diff --fuzz 8 --window 16 a.rd b.rd > ab.html`,
	Version:       version.Version,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	RunE: runDiff,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")

	rootCmd.Flags().IntVar(&fuzzLimit, "fuzz", diff.DefaultFuzzLimit, "Maximum per-trace realignment shift in dwords")
	rootCmd.Flags().IntVar(&window, "window", diff.DefaultWindow, "Dwords scored when choosing a realignment")
	rootCmd.Flags().StringVar(&title, "title", "", "Report title")

	rootCmd.AddCommand(versionCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts := cfg.DiffOptions()
	if cmd.Flags().Changed("fuzz") {
		opts.FuzzLimit = fuzzLimit
	}
	if cmd.Flags().Changed("window") {
		opts.Window = window
	}
	opts.Title = title

	c := diff.New(opts)
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer f.Close()
		c.Add(filepath.Base(path), bufio.NewReader(f))
	}

	logging.Debug("Correlating traces", zap.Strings("inputs", args), zap.Int("fuzz", opts.FuzzLimit))

	out := bufio.NewWriter(cmd.OutOrStdout())
	if err := c.Run(out); err != nil {
		return err
	}
	return out.Flush()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Tool("fdtrace-diff"))
	},
}
