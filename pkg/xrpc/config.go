package xrpc

import (
	"fmt"
	"time"
)

// ServerConfig configures one service's XRPC HTTP server.
//
// Every service exposes the same surface shape: its lexicon methods under
// /xrpc/<nsid>, plus health endpoints for orchestration probes.
type ServerConfig struct {
	// Host is the bind address. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host,omitempty"`

	// Port is the HTTP port for the XRPC endpoints.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means there is no timeout.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. A zero or negative value means there is no timeout.
	// Default: 30s (bulk trust operations fan out to the queue inline)
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If zero, the value of ReadTimeout is used.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// ApplyDefaults fills in zero values with sensible defaults. The port has
// no default here; each deployment assigns its own.
func (c *ServerConfig) ApplyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// Addr returns the host:port string the server listens on.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
