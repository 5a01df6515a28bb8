package postgres

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
)

const (
	defaultDSNEnv  = "NUDGEME_POSTGRES_DSN"
	defaultTable   = "nudgeme_memories"
	defaultTimeout = 5 * time.Second
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Config holds the remote memory tier configuration.
type Config struct {
	// DSN is a lib/pq connection string or postgres:// URL.
	DSN string `yaml:"dsn"`

	// DSNEnv names the environment variable read when DSN is empty.
	DSNEnv string `yaml:"dsn_env"`

	// Table holds the memory records. Defaults to nudgeme_memories.
	Table string `yaml:"table"`

	// ConnectTimeout bounds the startup ping and schema creation.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// MaxOpenConns caps the connection pool. Defaults to 4.
	MaxOpenConns int `yaml:"max_open_conns"`
}

func (c *Config) defaults() {
	if c.DSNEnv == "" {
		c.DSNEnv = defaultDSNEnv
	}
	if c.DSN == "" {
		c.DSN = os.Getenv(c.DSNEnv)
	}
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultTimeout
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.DSN == "" {
		errs = append(errs, fmt.Errorf("memory.postgres: dsn is empty and %s is not set", c.DSNEnv))
	}
	if !tableNamePattern.MatchString(c.Table) {
		errs = append(errs, fmt.Errorf("memory.postgres: invalid table name %q", c.Table))
	}
	if c.MaxOpenConns < 0 {
		errs = append(errs, errors.New("memory.postgres: max_open_conns must not be negative"))
	}
	return errors.Join(errs...)
}
