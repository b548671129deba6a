package config

import (
	"time"

	"github.com/muurk/fdtrace/internal/capture"
	"github.com/muurk/fdtrace/internal/collector"
	"github.com/muurk/fdtrace/internal/decode"
	"github.com/muurk/fdtrace/internal/diff"
)

// Config represents the entire user configuration file.
// Every section is optional; missing values fall back to the package
// defaults of the tool that reads them.
type Config struct {
	Version   int              `yaml:"version"`
	LogLevel  string           `yaml:"log_level,omitempty"` // debug, info, warn, error
	Capture   *CaptureConfig   `yaml:"capture,omitempty"`
	Decode    *DecodeConfig    `yaml:"decode,omitempty"`
	Diff      *DiffConfig      `yaml:"diff,omitempty"`
	Collector *CollectorConfig `yaml:"collector,omitempty"`

	// Collectors remembers the collectors seen by discovery, keyed by
	// instance name.
	Collectors map[string]*KnownCollector `yaml:"collectors,omitempty"`
}

// CaptureConfig holds the capture session settings.
type CaptureConfig struct {
	Safe         bool   `yaml:"safe"`
	SafePauseMS  int    `yaml:"safe_pause_ms,omitempty"`
	EmulateGPUID uint32 `yaml:"emulate_gpu_id,omitempty"` // 0 uses the real GPU
	GmemSize     uint32 `yaml:"gmem_size,omitempty"`
	OutputDir    string `yaml:"output_dir,omitempty"`
	Sink         string `yaml:"sink,omitempty"` // ws:// URL of a collector
	DefaultName  string `yaml:"default_name,omitempty"`
}

// DecodeConfig holds the decoder defaults.
type DecodeConfig struct {
	Verbose   bool   `yaml:"verbose"`
	Summary   bool   `yaml:"summary"`
	Color     string `yaml:"color,omitempty"` // auto, always, never
	MaxDepth  int    `yaml:"max_depth,omitempty"`
	ShaderDir string `yaml:"shader_dir,omitempty"`
	GPUID     uint32 `yaml:"gpu_id,omitempty"`
}

// DiffConfig holds the correlator defaults.
type DiffConfig struct {
	FuzzLimit int `yaml:"fuzz_limit,omitempty"`
	Window    int `yaml:"window,omitempty"`
}

// CollectorConfig holds the collector server settings.
type CollectorConfig struct {
	Listen        string `yaml:"listen,omitempty"`
	Dir           string `yaml:"dir,omitempty"`
	Advertise     bool   `yaml:"advertise"`
	Instance      string `yaml:"instance,omitempty"`
	BrowseTimeout int    `yaml:"browse_timeout,omitempty"` // seconds
}

// KnownCollector is a collector remembered from discovery.
type KnownCollector struct {
	URL      string    `yaml:"url"`
	Hostname string    `yaml:"hostname,omitempty"`
	LastSeen time.Time `yaml:"last_seen,omitempty"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Capture: &CaptureConfig{
			SafePauseMS: int(capture.DefaultSafePause / time.Millisecond),
			OutputDir:   ".",
			DefaultName: "trace",
		},
		Decode: &DecodeConfig{
			Color:     decode.ColorAuto.String(),
			MaxDepth:  decode.DefaultMaxDepth,
			ShaderDir: "shaders",
		},
		Diff: &DiffConfig{
			FuzzLimit: diff.DefaultFuzzLimit,
			Window:    diff.DefaultWindow,
		},
		Collector: &CollectorConfig{
			Listen:        ":9190",
			Dir:           "traces",
			Advertise:     true,
			BrowseTimeout: int(collector.DefaultBrowseTimeout / time.Second),
		},
		Collectors: make(map[string]*KnownCollector),
	}
}

// fillDefaults sets any missing section to its default.
func (c *Config) fillDefaults() {
	def := NewConfig()
	if c.Capture == nil {
		c.Capture = def.Capture
	}
	if c.Decode == nil {
		c.Decode = def.Decode
	}
	if c.Diff == nil {
		c.Diff = def.Diff
	}
	if c.Collector == nil {
		c.Collector = def.Collector
	}
	if c.Collectors == nil {
		c.Collectors = make(map[string]*KnownCollector)
	}
}

// CaptureOptions converts the capture section, then applies the
// FDTRACE_* environment overrides on top.
func (c *Config) CaptureOptions(lookup func(string) (string, bool)) (capture.Options, error) {
	opts := capture.DefaultOptions()
	if cc := c.Capture; cc != nil {
		opts.Safe = cc.Safe
		if cc.SafePauseMS > 0 {
			opts.SafePause = time.Duration(cc.SafePauseMS) * time.Millisecond
		}
		opts.EmulateGPUID = cc.EmulateGPUID
		opts.GmemSize = cc.GmemSize
		if cc.OutputDir != "" {
			opts.OutputDir = cc.OutputDir
		}
		opts.SinkURL = cc.Sink
		if cc.DefaultName != "" {
			opts.DefaultName = cc.DefaultName
		}
	}
	return opts.WithEnv(lookup)
}

// DecodeOptions converts the decode section.
func (c *Config) DecodeOptions() (decode.Options, error) {
	var opts decode.Options
	dc := c.Decode
	if dc == nil {
		return opts, nil
	}
	color, err := decode.ParseColorMode(dc.Color)
	if err != nil {
		return opts, err
	}
	opts.Verbose = dc.Verbose
	opts.Summary = dc.Summary
	opts.Color = color
	opts.MaxDepth = dc.MaxDepth
	opts.ShaderDir = dc.ShaderDir
	opts.GPUID = dc.GPUID
	return opts, nil
}

// DiffOptions converts the diff section.
func (c *Config) DiffOptions() diff.Options {
	if c.Diff == nil {
		return diff.Options{}
	}
	return diff.Options{FuzzLimit: c.Diff.FuzzLimit, Window: c.Diff.Window}
}

// RememberCollector records a discovered collector.
func (c *Config) RememberCollector(instance, url, hostname string) {
	if c.Collectors == nil {
		c.Collectors = make(map[string]*KnownCollector)
	}
	c.Collectors[instance] = &KnownCollector{
		URL:      url,
		Hostname: hostname,
		LastSeen: time.Now(),
	}
}
