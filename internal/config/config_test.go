package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Servers = []ServerConfig{
		{Slug: "web1", Host: "web1.example.com", User: "deploy", Password: "secret"},
		{Slug: "web2", Host: "web2.example.com", User: "deploy", PrivateKeyPath: "/home/deploy/.ssh/id_ed25519"},
	}
	return cfg
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "no servers",
			mutate:  func(c *Config) { c.Servers = nil },
			wantMsg: "at least one server",
		},
		{
			name: "duplicate slug",
			mutate: func(c *Config) {
				c.Servers = append(c.Servers, c.Servers[0])
			},
			wantMsg: "duplicate server slug",
		},
		{
			name:    "missing slug",
			mutate:  func(c *Config) { c.Servers[0].Slug = "" },
			wantMsg: "slug is required",
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Servers[0].Host = "" },
			wantMsg: "host is required",
		},
		{
			name:    "missing user",
			mutate:  func(c *Config) { c.Servers[0].User = "" },
			wantMsg: "user is required",
		},
		{
			name:    "no credential",
			mutate:  func(c *Config) { c.Servers[0].Password = "" },
			wantMsg: "exactly one of",
		},
		{
			name: "conflicting credentials",
			mutate: func(c *Config) {
				c.Servers[0].PrivateKeyPath = "/some/key"
			},
			wantMsg: "conflicting credentials",
		},
		{
			name: "passphrase without key",
			mutate: func(c *Config) {
				c.Servers[0].Passphrase = "secret"
			},
			wantMsg: "passphrase",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Servers[0].Port = 70000 },
			wantMsg: "invalid port",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Servers[0].Timeout = -time.Second },
			wantMsg: "timeout",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantMsg: "logging level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantMsg: "logging format",
		},
		{
			name: "history enabled without path",
			mutate: func(c *Config) {
				c.History.Enabled = true
				c.History.Path = ""
			},
			wantMsg: "history.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg),
				"error %q should contain %q", err.Error(), tt.wantMsg)
		})
	}
}

func TestDescriptorsPreserveOrder(t *testing.T) {
	cfg := validConfig()
	cfg.Servers[1].Port = 2222
	cfg.Servers[1].Timeout = 5 * time.Second

	descriptors := cfg.Descriptors()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "web1", descriptors[0].Slug)
	assert.Equal(t, "secret", descriptors[0].Password)
	assert.Equal(t, "web2", descriptors[1].Slug)
	assert.Equal(t, 2222, descriptors[1].Port)
	assert.Equal(t, 5*time.Second, descriptors[1].Timeout)
	assert.Equal(t, "/home/deploy/.ssh/id_ed25519", descriptors[1].PrivateKeyPath)
}
