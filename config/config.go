package config

import (
	"fmt"
	"time"

	"github.com/tetherfn/tether/types"
)

// Config represents a tether.yaml configuration file.
// All values are optional and act as defaults; explicit options passed
// to constructors always override config values.
type Config struct {
	// Mode selects which side of the bridge this process plays:
	// "local" (also "server") executes bodies in-process, "remote"
	// (also "client") forwards calls over the transport. Decided once
	// per process, before any call is made.
	Mode string `yaml:"mode"`

	Serve     ServeConfig     `yaml:"serve"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
}

// ServeConfig holds serving-side defaults.
type ServeConfig struct {
	// Listen is the address the dispatch server binds, e.g. ":8090".
	Listen string `yaml:"listen"`
	// Route overrides the default dispatch route.
	Route string `yaml:"route"`
	// EnvPasslist names process environment variables exposed to
	// function bodies through per-request carriers.
	EnvPasslist []string `yaml:"env_passlist"`
}

// TransportConfig holds calling-side defaults.
type TransportConfig struct {
	// Endpoint is the base URL of the serving process.
	Endpoint string `yaml:"endpoint"`
	// Route overrides the default dispatch route.
	Route string `yaml:"route"`
	// Retries bounds buffered-call retry attempts for connection-level
	// failures. Zero means the built-in default.
	Retries int `yaml:"retries"`
	// Timeout bounds a single buffered call end to end.
	Timeout Duration `yaml:"timeout"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// DispatchRoute returns the serving-side dispatch route, falling back
// to the default when unset.
func (s ServeConfig) DispatchRoute() string {
	if s.Route != "" {
		return s.Route
	}
	return types.DefaultDispatchRoute
}

// DispatchRoute returns the calling-side dispatch route, falling back
// to the default when unset.
func (t TransportConfig) DispatchRoute() string {
	if t.Route != "" {
		return t.Route
	}
	return types.DefaultDispatchRoute
}

// Validate checks cross-field constraints that yaml decoding cannot.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", "local", "server", "remote", "client":
	default:
		return fmt.Errorf("invalid mode %q: want local or remote", c.Mode)
	}
	if (c.Mode == "remote" || c.Mode == "client") && c.Transport.Endpoint == "" {
		return fmt.Errorf("remote mode requires transport.endpoint")
	}
	return nil
}
