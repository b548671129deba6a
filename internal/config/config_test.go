package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/fdtrace/internal/decode"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(configDir, "fdtrace") {
		t.Errorf("GetConfigDir() = %v, should contain 'fdtrace'", configDir)
	}
	if runtime.GOOS == "linux" && os.Getenv("XDG_CONFIG_HOME") == "" && !strings.Contains(configDir, ".config") {
		t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
	}
}

func TestGetConfigPathOverride(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv(EnvConfig, want)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if got != want {
		t.Errorf("GetConfigPath() = %q, want %q", got, want)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Capture.SafePauseMS != 10 {
		t.Errorf("Capture.SafePauseMS = %d, want 10", cfg.Capture.SafePauseMS)
	}
	if cfg.Decode.MaxDepth != decode.DefaultMaxDepth {
		t.Errorf("Decode.MaxDepth = %d", cfg.Decode.MaxDepth)
	}
	if cfg.Collector.BrowseTimeout != 5 {
		t.Errorf("Collector.BrowseTimeout = %d, want 5", cfg.Collector.BrowseTimeout)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "partial document keeps defaults",
			doc:  "version: 1\ndecode:\n  summary: true\n  color: never\n",
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Decode.Summary || cfg.Decode.Color != "never" {
					t.Errorf("Decode = %+v", cfg.Decode)
				}
				if cfg.Capture == nil || cfg.Capture.OutputDir != "." {
					t.Errorf("Capture defaults missing: %+v", cfg.Capture)
				}
			},
		},
		{
			name:    "wrong version",
			doc:     "version: 2\n",
			wantErr: true,
		},
		{
			name:    "bad yaml",
			doc:     "version: [1\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := NewConfig()
	cfg.Capture.Safe = true
	cfg.Capture.EmulateGPUID = 320
	cfg.Diff.Window = 16
	cfg.RememberCollector("bench", "ws://10.0.0.2:9190/trace", "bench.local.")

	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !got.Capture.Safe || got.Capture.EmulateGPUID != 320 || got.Diff.Window != 16 {
		t.Errorf("round trip lost values: capture %+v diff %+v", got.Capture, got.Diff)
	}
	kc := got.Collectors["bench"]
	if kc == nil || kc.URL != "ws://10.0.0.2:9190/trace" {
		t.Fatalf("Collectors[bench] = %+v", kc)
	}
	if time.Since(kc.LastSeen) > time.Minute {
		t.Errorf("LastSeen = %v", kc.LastSeen)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Version != 1 || cfg.Decode == nil {
		t.Errorf("LoadFile() = %+v, want defaults", cfg)
	}
}

func TestCaptureOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.Capture.SafePauseMS = 25
	cfg.Capture.OutputDir = "/tmp/traces"
	cfg.Capture.EmulateGPUID = 220

	env := map[string]string{"FDTRACE_GPU_ID": "320", "FDTRACE_SAFE": "1"}
	opts, err := cfg.CaptureOptions(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("CaptureOptions() error = %v", err)
	}
	if opts.SafePause != 25*time.Millisecond {
		t.Errorf("SafePause = %v", opts.SafePause)
	}
	if opts.OutputDir != "/tmp/traces" {
		t.Errorf("OutputDir = %q", opts.OutputDir)
	}
	if opts.EmulateGPUID != 320 || !opts.Safe {
		t.Errorf("environment should override the file: %+v", opts)
	}
}

func TestDecodeOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.Decode.Color = "always"
	cfg.Decode.GPUID = 320

	opts, err := cfg.DecodeOptions()
	if err != nil {
		t.Fatalf("DecodeOptions() error = %v", err)
	}
	if opts.Color != decode.ColorAlways || opts.GPUID != 320 {
		t.Errorf("DecodeOptions() = %+v", opts)
	}

	cfg.Decode.Color = "purple"
	if _, err := cfg.DecodeOptions(); err == nil {
		t.Error("DecodeOptions() should reject an unknown colour mode")
	}
}
