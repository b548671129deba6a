// Package config provides user configuration for the fdtrace tools.
//
// The configuration is a YAML file holding defaults for the capture
// session, the decoder, the correlator and the collector, plus the
// collectors remembered from discovery. Environment variables and command
// line flags take precedence over it.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/fdtrace/config.yaml or $HOME/.config/fdtrace/config.yaml
//   - macOS: $HOME/.config/fdtrace/config.yaml
//   - Windows: %LOCALAPPDATA%\fdtrace\config.yaml
//
// FDTRACE_CONFIG overrides the location.
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts, err := cfg.CaptureOptions(os.LookupEnv)
//
// # Thread Safety
//
// The global configuration uses sync.Once for safe initialization across
// goroutines. File writes are protected by a mutex and are atomic.
package config
