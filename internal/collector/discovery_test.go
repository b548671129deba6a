package collector

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	entry := func(port int, v4, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
		e := zeroconf.NewServiceEntry("bench", ServiceType, ServiceDomain)
		e.HostName = "bench.local."
		e.Port = port
		e.AddrIPv4 = v4
		e.AddrIPv6 = v6
		e.Text = txt
		return e
	}

	tests := []struct {
		name    string
		entry   *zeroconf.ServiceEntry
		wantNil bool
		wantURL string
	}{
		{
			name:    "ipv4",
			entry:   entry(9190, []net.IP{net.ParseIP("192.168.1.20")}, nil, "path=/trace", "flag"),
			wantURL: "ws://192.168.1.20:9190/trace",
		},
		{
			name:    "ipv6 fallback",
			entry:   entry(9000, nil, []net.IP{net.ParseIP("fe80::1")}),
			wantURL: "ws://[fe80::1]:9000/trace",
		},
		{
			name:    "default port",
			entry:   entry(0, []net.IP{net.ParseIP("10.0.0.2")}, nil),
			wantURL: "ws://10.0.0.2:9190/trace",
		},
		{
			name:    "no address",
			entry:   entry(9190, nil, nil),
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := parseServiceEntry(tt.entry)
			if (c == nil) != tt.wantNil {
				t.Fatalf("parseServiceEntry() = %v, wantNil %v", c, tt.wantNil)
			}
			if c == nil {
				return
			}
			if c.URL() != tt.wantURL {
				t.Errorf("URL() = %q, want %q", c.URL(), tt.wantURL)
			}
			if c.Instance != "bench" {
				t.Errorf("Instance = %q, want bench", c.Instance)
			}
		})
	}

	c := parseServiceEntry(entry(9190, []net.IP{net.ParseIP("10.0.0.2")}, nil, "path=/trace", "flag"))
	if c.Metadata["path"] != "/trace" {
		t.Errorf("Metadata[path] = %q", c.Metadata["path"])
	}
	if v, ok := c.Metadata["flag"]; !ok || v != "" {
		t.Errorf("Metadata[flag] = %q, %v", v, ok)
	}
}

func TestDedupe(t *testing.T) {
	in := []*Collector{
		{Instance: "a", IP: "10.0.0.1", Port: 9190},
		{Instance: "b", IP: "10.0.0.1", Port: 9190},
		{Instance: "c", IP: "10.0.0.1", Port: 9191},
	}
	out := dedupe(in)
	if len(out) != 2 || out[0].Instance != "a" || out[1].Instance != "c" {
		t.Errorf("dedupe() = %v", out)
	}
}
