// Fdtrace-collect receives traces streamed by capture sessions over a
// websocket and writes them to disk.
//
// A capture session running on a device with FDTRACE_SINK set to the
// collector URL sends every trace section as one binary message. The
// collector advertises itself over mDNS so devices on the same network can
// find it with 'fdtrace-collect discover'.
//
// Usage:
//
//	fdtrace-collect serve [flags]
//	fdtrace-collect discover [flags]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

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

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "fdtrace-collect",
	Short: "fdtrace remote trace collector",
	Long: `A websocket collector for traces captured on remote devices.

Run 'fdtrace-collect serve' on the workstation, then point the capture
session at it with FDTRACE_SINK=ws://host:9190/trace.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Tool("fdtrace-collect"))
	},
}
