package runtime

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override values loaded from a config file.
const (
	EnvDatabaseURL = "PEBBLE_DATABASE_URL"
	EnvDebug       = "PEBBLE_DEBUG"
)

// Config represents database configuration.
type Config struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`

	// StatementTimeout bounds every statement run through the executor.
	// Zero means no timeout beyond the caller's context.
	StatementTimeout time.Duration `yaml:"statement_timeout"`

	// SlowQueryThreshold logs statements that take at least this long.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`

	// Debug records every statement in the in-memory query log.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:               "localhost",
		Port:               5432,
		Database:           "postgres",
		User:               "postgres",
		SSLMode:            "prefer",
		MaxConns:           10,
		MinConns:           2,
		StatementTimeout:   30 * time.Second,
		SlowQueryThreshold: time.Second,
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig and applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if url := os.Getenv(EnvDatabaseURL); url != "" {
		c.URL = url
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvDebug, v, err)
		}
		c.Debug = debug
	}
	return nil
}

// ConnString returns the URL when set, or a keyword/value connection string
// built from the individual fields.
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		port,
		c.User,
		c.Password,
		c.Database,
		sslMode,
	)
}
