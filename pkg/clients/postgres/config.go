package postgres

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultMaxConns        int32 = 10
	DefaultMinConns        int32 = 1
	DefaultMaxConnLifetime       = time.Hour
	DefaultMaxConnIdleTime       = 30 * time.Minute
	DefaultHealthTimeout         = 5 * time.Second
	maxStatementLen              = 100
)

// Config configures the pool. URI is a postgres:// URL and is required when
// the store is enabled.
type Config struct {
	URI             string        `json:"uri,omitempty" yaml:"uri" env:"URI"`
	MaxConns        int32         `json:"max_conns,omitempty" yaml:"max_conns" env:"MAX_CONNS"`
	MinConns        int32         `json:"min_conns,omitempty" yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `json:"max_conn_lifetime,omitempty" yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `json:"max_conn_idle_time,omitempty" yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
}

// Enabled reports whether a database URI is configured.
func (c *Config) Enabled() bool {
	return c.URI != ""
}

// Validate fills defaults and checks the URI and pool bounds.
func (c *Config) Validate() error {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}

	u, err := url.Parse(c.URI)
	if err != nil {
		return fmt.Errorf("postgres: config URI is invalid: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("postgres: config URI scheme must be postgres:// or postgresql://, got %q", u.Scheme)
	}
	if c.MinConns < 0 || c.MaxConns < 1 || c.MinConns > c.MaxConns {
		return fmt.Errorf("postgres: config requires 0 <= min_conns (%d) <= max_conns (%d) and max_conns >= 1",
			c.MinConns, c.MaxConns)
	}
	return nil
}

func truncate(sql string) string {
	if r := []rune(sql); len(r) > maxStatementLen {
		return string(r[:maxStatementLen]) + "..."
	}
	return sql
}
