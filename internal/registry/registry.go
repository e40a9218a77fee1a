// Package registry holds the immutable set of configured SSH servers.
package registry

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied to descriptors that leave the field unset.
const (
	DefaultPort    = 22
	DefaultTimeout = 10 * time.Second
)

// Registry errors.
var (
	// ErrUnknownServer indicates the requested slug is not configured.
	ErrUnknownServer = errors.New("unknown server")
)

// ConfigError indicates an invalid server list was supplied at load time.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("server config: %s", e.Reason)
}

// Descriptor describes how to reach and authenticate to one server.
// Immutable after load.
type Descriptor struct {
	// Slug is the unique caller-chosen name for the server.
	Slug string

	// Host is the server address (name or IP).
	Host string

	// Port is the SSH port (defaults to 22 when unset).
	Port int

	// User is the SSH username.
	User string

	// Password authenticates with a plain password when set.
	Password string

	// PrivateKeyPath points at a PEM private key file.
	PrivateKeyPath string

	// PrivateKey holds base64-encoded PEM private key material.
	PrivateKey string

	// Passphrase decrypts an encrypted private key.
	Passphrase string

	// Timeout bounds the full connection handshake (defaults to 10s).
	Timeout time.Duration
}

// Addr returns the host with the effective port applied.
func (d Descriptor) Addr() (host string, port int) {
	port = d.Port
	if port == 0 {
		port = DefaultPort
	}
	return d.Host, port
}

// ConnectTimeout returns the effective handshake timeout.
func (d Descriptor) ConnectTimeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

// Registry is an immutable slug-to-descriptor mapping that preserves
// declaration order.
type Registry struct {
	order []string
	byID  map[string]Descriptor
}

// Load builds a registry from the given descriptors. It fails with a
// *ConfigError if the list is empty or a slug repeats; no partial registry
// is ever returned.
func Load(descriptors []Descriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, &ConfigError{Reason: "no servers configured"}
	}

	r := &Registry{
		order: make([]string, 0, len(descriptors)),
		byID:  make(map[string]Descriptor, len(descriptors)),
	}
	for i, d := range descriptors {
		if d.Slug == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("server %d has an empty slug", i)}
		}
		if d.Host == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("server %q has an empty host", d.Slug)}
		}
		if _, exists := r.byID[d.Slug]; exists {
			return nil, &ConfigError{Reason: fmt.Sprintf("duplicate server slug %q", d.Slug)}
		}
		r.order = append(r.order, d.Slug)
		r.byID[d.Slug] = d
	}
	return r, nil
}

// Get returns the descriptor for the given slug.
func (r *Registry) Get(slug string) (Descriptor, error) {
	d, ok := r.byID[slug]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownServer, slug)
	}
	return d, nil
}

// DefaultSlug returns the slug of the first descriptor in declaration order.
// It is the fallback target when a caller omits an explicit server.
func (r *Registry) DefaultSlug() string {
	return r.order[0]
}

// Slugs returns all configured slugs in declaration order.
func (r *Registry) Slugs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of configured servers.
func (r *Registry) Len() int {
	return len(r.order)
}
