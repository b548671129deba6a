package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
)

const (
	// ServiceType is the mDNS service type collectors advertise
	ServiceType = "_fdtrace._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultBrowseTimeout is the default time spent listening for
	// collectors
	DefaultBrowseTimeout = 5 * time.Second
)

// Collector is a collector found on the local network.
type Collector struct {
	// Instance is the advertised instance name
	Instance string

	// Hostname is the mDNS hostname
	Hostname string

	// IP is the collector address, IPv4 preferred
	IP string

	Port int

	// Metadata contains the mDNS TXT records
	Metadata map[string]string

	DiscoveredAt time.Time
}

func (c *Collector) String() string {
	return fmt.Sprintf("%s (%s) at %s:%d", c.Instance, c.Hostname, c.IP, c.Port)
}

// URL returns the websocket URL a capture session should dial.
func (c *Collector) URL() string {
	host := c.IP
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("ws://%s:%d%s", host, c.Port, Path)
}

// Advertise registers a collector instance over mDNS. Call Shutdown on
// the result to withdraw it.
func Advertise(instance string, port int, txt []string) (*zeroconf.Server, error) {
	txt = append([]string{"path=" + Path}, txt...)
	srv, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to advertise collector: %w", err)
	}
	logging.Info("Collector advertised",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return srv, nil
}

// Browser looks for collectors over mDNS.
type Browser struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewBrowser creates a browser with default settings
func NewBrowser() *Browser {
	return &Browser{Timeout: DefaultBrowseTimeout}
}

// Browse lists the collectors that answer before the timeout or ctx ends.
func (b *Browser) Browse(ctx context.Context) ([]*Collector, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		found []*Collector
		done  = make(chan struct{})
	)
	go func() {
		defer close(done)
		for entry := range entries {
			if c := parseServiceEntry(entry); c != nil {
				mu.Lock()
				found = append(found, c)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return dedupe(found), nil
}

// First waits for the first collector to answer.
func (b *Browser) First(ctx context.Context) (*Collector, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	foundCh := make(chan *Collector, 1)
	go func() {
		for entry := range entries {
			if c := parseServiceEntry(entry); c != nil {
				select {
				case foundCh <- c:
				default:
				}
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case c := <-foundCh:
		return c, nil
	case <-ctx.Done():
		select {
		case c := <-foundCh:
			return c, nil
		default:
		}
		return nil, fmt.Errorf("no collector found within %s", b.Timeout)
	}
}

// parseServiceEntry converts a zeroconf entry, or returns nil when it has
// no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Collector {
	if entry == nil {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Collector{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// dedupe drops repeated answers for the same address, keeping the first.
func dedupe(in []*Collector) []*Collector {
	seen := make(map[string]bool)
	var out []*Collector
	for _, c := range in {
		key := fmt.Sprintf("%s:%d", c.IP, c.Port)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
