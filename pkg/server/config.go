package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gavi-dev/gavi/pkg/protocol"
)

// Config holds server and per-connection configuration.
type Config struct {
	// Address is the listen address. Default: ":8000".
	Address string

	// ReadChunkSize is the size of request body chunks delivered as
	// request events. Default: 64KB.
	ReadChunkSize int

	// EventQueueSize is the inbound event buffer per connection. When the
	// buffer is full the transport blocks until the application drains it.
	// Default: 64.
	EventQueueSize int

	// ReadHeaderTimeout is the maximum time to read request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// IdleTimeout is the keep-alive idle limit. Default: 2 minutes.
	IdleTimeout time.Duration

	// StartupTimeout bounds the lifespan startup exchange; an application
	// that consumes lifespan.startup but never answers fails the boot
	// instead of blocking it. Default: 30 seconds.
	StartupTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 15 seconds.
	ShutdownTimeout time.Duration

	// WriteTimeout is the maximum time to wait when writing a websocket
	// message. Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxMessageSize is the maximum inbound websocket message size.
	// Default: 1MB.
	MaxMessageSize int64

	// CheckOrigin validates websocket upgrade origins. Default: same-origin.
	CheckOrigin func(r *http.Request) bool

	// DisableLifespan skips the lifespan startup/shutdown exchange.
	DisableLifespan bool

	// Registry produces each connection's extension capability map.
	// Default: protocol.DefaultRegistry().
	Registry *protocol.Registry

	// Logger is the server logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8000",
		ReadChunkSize:     64 << 10,
		EventQueueSize:    64,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		StartupTimeout:    30 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    1 << 20,
		Registry:          protocol.DefaultRegistry(),
		Logger:            slog.Default(),
	}
}

// withDefaults fills in zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	defaults := DefaultConfig()
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.ReadChunkSize == 0 {
		out.ReadChunkSize = defaults.ReadChunkSize
	}
	if out.EventQueueSize == 0 {
		out.EventQueueSize = defaults.EventQueueSize
	}
	if out.ReadHeaderTimeout == 0 {
		out.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if out.IdleTimeout == 0 {
		out.IdleTimeout = defaults.IdleTimeout
	}
	if out.StartupTimeout == 0 {
		out.StartupTimeout = defaults.StartupTimeout
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.MaxMessageSize == 0 {
		out.MaxMessageSize = defaults.MaxMessageSize
	}
	if out.Registry == nil {
		out.Registry = defaults.Registry
	}
	if out.Logger == nil {
		out.Logger = defaults.Logger
	}
	return &out
}
