package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/collector"
	"github.com/muurk/fdtrace/internal/config"
	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/ui"
)

// Serve flags
var (
	listenAddr  string
	outputDir   string
	instance    string
	noAdvertise bool
)

// Discover flags
var (
	browseTimeout int
	remember      bool
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	urlStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive traces from capture sessions",
	Long: `Listen for capture sessions and record their traces.

Each connection writes into --dir. A TEST section starts a new file named
after the test; sections sent before the first TEST go to a file named
after the ?name= query parameter of the connection.`,
	Example: `  # Serve on the default port and advertise over mDNS
  fdtrace-collect serve

  # Custom directory and port, no mDNS
  fdtrace-collect serve --listen :9000 --dir ./captures --no-advertise`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config, :9190)")
	serveCmd.Flags().StringVar(&outputDir, "dir", "", "Directory receiving trace files (default from config, ./traces)")
	serveCmd.Flags().StringVar(&instance, "instance", "", "mDNS instance name (default: hostname)")
	serveCmd.Flags().BoolVar(&noAdvertise, "no-advertise", false, "Do not advertise over mDNS")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cc := cfg.Collector
	if listenAddr == "" {
		listenAddr = cc.Listen
	}
	if outputDir == "" {
		outputDir = cc.Dir
	}
	if instance == "" {
		instance = cc.Instance
	}
	if instance == "" {
		instance, _ = os.Hostname()
	}
	advertise := cc.Advertise && !noAdvertise

	port, err := listenPort(listenAddr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if advertise {
		zc, err := collector.Advertise(instance, port, nil)
		if err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			defer zc.Shutdown()
		}
	}

	fmt.Println(ui.NewHeader("Trace collector", "fdtrace-collect serve",
		ui.Field{Key: "Listen", Value: listenAddr},
		ui.Field{Key: "Directory", Value: outputDir},
		ui.Field{Key: "mDNS", Value: fmt.Sprintf("%s (%v)", instance, advertise)},
	))
	fmt.Println(dimStyle.Render("Press Ctrl+C to stop"))

	srv := collector.NewServer(outputDir)
	if err := srv.ListenAndServe(ctx, listenAddr); err != nil {
		return err
	}

	result := ui.NewSuccessResult("Collector stopped")
	for i, f := range srv.Files() {
		result.AddField(fmt.Sprintf("Trace %d", i+1), f)
	}
	fmt.Println(result)
	return nil
}

// listenPort extracts the numeric port of a listen address.
func listenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if p == "" {
		return collector.DefaultPort, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid listen port %q", p)
	}
	return port, nil
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find collectors on the local network",
	Long: `Browse for collectors advertised over mDNS and print the FDTRACE_SINK
value for each.

With --remember the collectors are stored in the configuration file.`,
	Example: `  # Browse for 5 seconds (default)
  fdtrace-collect discover

  # Browse longer and store the results
  fdtrace-collect discover --timeout 15 --remember`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&browseTimeout, "timeout", 0, "Browse timeout in seconds (default from config, 5)")
	discoverCmd.Flags().BoolVar(&remember, "remember", false, "Store discovered collectors in the configuration file")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if browseTimeout <= 0 {
		browseTimeout = cfg.Collector.BrowseTimeout
	}

	b := collector.NewBrowser()
	if browseTimeout > 0 {
		b.Timeout = time.Duration(browseTimeout) * time.Second
	}

	fmt.Printf("Browsing for collectors (timeout: %s)...\n\n", b.Timeout)

	found, err := b.Browse(context.Background())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(found) == 0 {
		fmt.Println(ui.NewWarningResult("No collectors found",
			"Check that 'fdtrace-collect serve' is running without --no-advertise",
			"Multicast DNS may be blocked between these networks",
			"Try increasing --timeout",
		))
		return nil
	}

	fmt.Printf("Found %d collector(s):\n\n", len(found))
	for i, c := range found {
		fmt.Printf("%d. %s\n", i+1, titleStyle.Render(c.Instance))
		fmt.Printf("   Host: %s\n", c.Hostname)
		fmt.Printf("   Sink: FDTRACE_SINK=%s\n", urlStyle.Render(c.URL()))
		if len(c.Metadata) > 0 {
			fmt.Printf("   %s\n", dimStyle.Render(fmt.Sprintf("TXT: %v", c.Metadata)))
		}
		fmt.Println()
		if remember {
			cfg.RememberCollector(c.Instance, c.URL(), c.Hostname)
		}
	}

	if remember {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		fmt.Println("Collectors saved to the configuration file")
	}
	return nil
}
