package udp

import (
	"fmt"
	"time"
)

const (
	// DefaultHost binds every interface.
	DefaultHost = "0.0.0.0"

	// DefaultPort is used by DefaultConfig. A zero Port in an explicit
	// Config means an OS-assigned port.
	DefaultPort = 60000

	// DefaultBufferSize is the largest datagram accepted without truncation.
	DefaultBufferSize = 512 * 1024

	// DefaultShutdownTimeout bounds how long shutdown waits for in-flight
	// pipelines.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMetricsLogInterval is used by DefaultConfig.
	DefaultMetricsLogInterval = 5 * time.Minute
)

// Config holds the UDP dispatcher settings.
//
// Default values (applied by New if zero):
//   - Host: 0.0.0.0
//   - BufferSize: 512KB
//   - ShutdownTimeout: 30s
//
// Port and MetricsLogInterval keep their zero meaning (OS-assigned port,
// no periodic logging). DefaultConfig fills them in for daemons.
type Config struct {
	// Host is the IP address or hostname to bind.
	Host string `mapstructure:"host" yaml:"host" validate:"required"`

	// Port is the UDP port to bind. 0 lets the OS choose.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// BufferSize is the receive buffer per datagram in bytes.
	// Longer datagrams are truncated to this size.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size" validate:"min=0"`

	// ReadBufferSize sets the kernel receive buffer (SO_RCVBUF). 0 keeps the OS default.
	ReadBufferSize int `mapstructure:"read_buffer_size" yaml:"read_buffer_size" validate:"min=0"`

	// WriteBufferSize sets the kernel send buffer (SO_SNDBUF). 0 keeps the OS default.
	WriteBufferSize int `mapstructure:"write_buffer_size" yaml:"write_buffer_size" validate:"min=0"`

	// TTL sets the IP time-to-live of outgoing datagrams. 0 keeps the OS default.
	TTL int `mapstructure:"ttl" yaml:"ttl" validate:"min=0,max=255"`

	// MaxInFlight caps concurrently running pipelines. Datagrams arriving
	// at the cap are dropped. 0 means unlimited.
	MaxInFlight int `mapstructure:"max_in_flight" yaml:"max_in_flight" validate:"min=0"`

	// RateLimit caps the rate at which datagrams are admitted.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// ShutdownTimeout is how long shutdown waits for in-flight pipelines
	// before closing the socket under them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the interval for logging dispatcher counters.
	// 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// RateLimitConfig configures datagram admission.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained admission rate. 0 disables limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the number of datagrams admitted back to back.
	// 0 defaults to RequestsPerSecond.
	Burst uint `mapstructure:"burst" yaml:"burst"`
}

// DefaultConfig returns the settings a standalone server starts with.
func DefaultConfig() Config {
	return Config{
		Host:               DefaultHost,
		Port:               DefaultPort,
		BufferSize:         DefaultBufferSize,
		ShutdownTimeout:    DefaultShutdownTimeout,
		MetricsLogInterval: DefaultMetricsLogInterval,
	}
}

// Address returns host:port, bracketing IPv6 literals.
func (c Config) Address() string {
	return joinHostPort(c.Host, c.Port)
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// validate checks the configuration after defaults have been applied.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize %d: must be > 0", c.BufferSize)
	}
	if c.ReadBufferSize < 0 || c.WriteBufferSize < 0 {
		return fmt.Errorf("invalid socket buffer sizes %d/%d: must be >= 0", c.ReadBufferSize, c.WriteBufferSize)
	}
	if c.TTL < 0 || c.TTL > 255 {
		return fmt.Errorf("invalid TTL %d: must be 0-255", c.TTL)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("invalid MaxInFlight %d: must be >= 0", c.MaxInFlight)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.MetricsLogInterval < 0 {
		return fmt.Errorf("invalid MetricsLogInterval %v: must be >= 0", c.MetricsLogInterval)
	}
	return nil
}

// Validate applies defaults to a copy of c and checks it.
func (c Config) Validate() error {
	c.applyDefaults()
	return c.validate()
}
