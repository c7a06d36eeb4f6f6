package bridge

import (
	"fmt"

	"github.com/tetherfn/tether/log"
	"github.com/tetherfn/tether/metrics"
	"github.com/tetherfn/tether/registry"
	"github.com/tetherfn/tether/transport"
)

// Mode is the execution side this process plays. It is selected once at
// process start; proxies never re-decide per call.
type Mode int

const (
	// ModeLocal executes wrapped bodies directly in this process.
	ModeLocal Mode = iota
	// ModeRemote marshals every call to the dispatch endpoint.
	ModeRemote
)

// String returns the mode's wire name.
func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemote:
		return "remote"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name from configuration.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "local", "server":
		return ModeLocal, nil
	case "remote", "client":
		return ModeRemote, nil
	default:
		return 0, fmt.Errorf("invalid mode %q: must be local or remote", s)
	}
}

// Config configures a Bridge.
type Config struct {
	// Mode is the process role, selected once at startup.
	Mode Mode
	// Registry holds the wrapped function descriptors. Required.
	Registry *registry.Registry
	// Client dispatches remote calls. Required in ModeRemote.
	Client *transport.Client
	// Logger is optional; a nop logger is used when absent.
	Logger *log.Logger
	// Collector is optional; metrics are skipped when absent.
	Collector *metrics.Collector
}

// Bridge turns descriptors into dual-mode proxies. Construct one per
// process, after the registry is populated.
type Bridge struct {
	mode      Mode
	registry  *registry.Registry
	client    *transport.Client
	logger    *log.Logger
	collector *metrics.Collector
}

// New creates a bridge. In ModeRemote a transport client is required.
func New(cfg Config) (*Bridge, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("bridge: registry is required")
	}
	if cfg.Mode == ModeRemote && cfg.Client == nil {
		return nil, fmt.Errorf("bridge: remote mode requires a transport client")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Bridge{
		mode:      cfg.Mode,
		registry:  cfg.Registry,
		client:    cfg.Client,
		logger:    logger,
		collector: cfg.Collector,
	}, nil
}

// Mode returns the process role.
func (b *Bridge) Mode() Mode { return b.mode }

// Registry returns the underlying registry.
func (b *Bridge) Registry() *registry.Registry { return b.registry }

// Wrap returns the dual-mode proxy for a registered descriptor.
func (b *Bridge) Wrap(desc *registry.Descriptor) *Proxy {
	return &Proxy{desc: desc, bridge: b}
}

// Register registers a single-value function and wraps it in one step.
func (b *Bridge) Register(name string, fn registry.ValueFunc, opts ...registry.Option) (*Proxy, error) {
	desc, err := b.registry.Register(name, fn, opts...)
	if err != nil {
		return nil, err
	}
	return b.Wrap(desc), nil
}

// RegisterStream registers a sequence-producing function and wraps it in
// one step.
func (b *Bridge) RegisterStream(name string, fn registry.StreamFunc, opts ...registry.Option) (*Proxy, error) {
	desc, err := b.registry.RegisterStream(name, fn, opts...)
	if err != nil {
		return nil, err
	}
	return b.Wrap(desc), nil
}
