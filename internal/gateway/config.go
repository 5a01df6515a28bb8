package gateway

import (
	"errors"
	"net"
	"time"

	"github.com/nudgeme/nudgeme/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	MaxBodySize     int           `yaml:"max_body_size"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// EventBuffer is the number of events queued per websocket client
	// before further events are dropped for that client.
	EventBuffer int `yaml:"event_buffer"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8420"
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = security.DefaultMaxBodySize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	// Chat turns wait on the provider.
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 90 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 16
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, errors.New("gateway: invalid bind address: "+c.Bind))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("gateway: basic_user and basic_pass must be set together"))
	}
	return errors.Join(errs...)
}

// AuthConfig configures authentication for /api and /ws endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
