// Package config handles shellbridge configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/mkvold/shellbridge/internal/registry"
)

// Config is the root configuration structure for shellbridge.
type Config struct {
	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// History settings
	History HistoryConfig `yaml:"history" mapstructure:"history"`

	// Servers is the ordered list of reachable SSH servers. The first entry
	// is the default target when a caller omits an explicit server.
	Servers []ServerConfig `yaml:"servers" mapstructure:"servers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// HistoryConfig contains command-history settings.
type HistoryConfig struct {
	// Enabled turns execution recording on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxEntries caps the number of retained history rows.
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// ServerConfig describes one SSH server.
type ServerConfig struct {
	// Slug is the unique name callers use to address this server.
	Slug string `yaml:"slug" mapstructure:"slug"`

	// Host is the server address.
	Host string `yaml:"host" mapstructure:"host"`

	// Port is the SSH port (default 22).
	Port int `yaml:"port" mapstructure:"port"`

	// User is the SSH username.
	User string `yaml:"user" mapstructure:"user"`

	// Password authenticates with a plain password.
	Password string `yaml:"password" mapstructure:"password"`

	// PrivateKeyPath points at a PEM private key file.
	PrivateKeyPath string `yaml:"private_key_path" mapstructure:"private_key_path"`

	// PrivateKey holds base64-encoded PEM private key material.
	PrivateKey string `yaml:"private_key" mapstructure:"private_key"`

	// Passphrase decrypts an encrypted private key.
	Passphrase string `yaml:"passphrase" mapstructure:"passphrase"`

	// Timeout bounds the connection handshake (default 10s).
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       "~/.local/share/shellbridge/history.db",
			MaxEntries: 1000,
		},
	}
}

// Validate checks the configuration for errors. Loading is fail-fast: any
// structural or uniqueness violation aborts startup.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative")
	}

	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one server must be configured")
	}
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if err := s.validate(i); err != nil {
			return err
		}
		if seen[s.Slug] {
			return fmt.Errorf("duplicate server slug %q", s.Slug)
		}
		seen[s.Slug] = true
	}
	return nil
}

func (s ServerConfig) validate(index int) error {
	if s.Slug == "" {
		return fmt.Errorf("server %d: slug is required", index)
	}
	if s.Host == "" {
		return fmt.Errorf("server %q: host is required", s.Slug)
	}
	if s.User == "" {
		return fmt.Errorf("server %q: user is required", s.Slug)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("server %q: invalid port %d", s.Slug, s.Port)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("server %q: timeout must not be negative", s.Slug)
	}

	credentials := 0
	if s.Password != "" {
		credentials++
	}
	if s.PrivateKeyPath != "" {
		credentials++
	}
	if s.PrivateKey != "" {
		credentials++
	}
	switch {
	case credentials == 0:
		return fmt.Errorf("server %q: exactly one of password, private_key_path, private_key is required", s.Slug)
	case credentials > 1:
		return fmt.Errorf("server %q: conflicting credentials, set exactly one of password, private_key_path, private_key", s.Slug)
	}
	if s.Passphrase != "" && s.PrivateKeyPath == "" && s.PrivateKey == "" {
		return fmt.Errorf("server %q: passphrase is only meaningful with a private key", s.Slug)
	}
	return nil
}

// Descriptors converts the configured servers to registry descriptors,
// declaration order preserved.
func (c *Config) Descriptors() []registry.Descriptor {
	out := make([]registry.Descriptor, 0, len(c.Servers))
	for _, s := range c.Servers {
		out = append(out, registry.Descriptor{
			Slug:           s.Slug,
			Host:           s.Host,
			Port:           s.Port,
			User:           s.User,
			Password:       s.Password,
			PrivateKeyPath: s.PrivateKeyPath,
			PrivateKey:     s.PrivateKey,
			Passphrase:     s.Passphrase,
			Timeout:        s.Timeout,
		})
	}
	return out
}
