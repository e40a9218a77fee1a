package sshpool

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential indicates a descriptor has no usable authentication
	// credential. Surfaced before any network I/O is attempted.
	ErrNoCredential = errors.New("no authentication credential configured")

	// ErrConnectTimeout indicates the handshake did not complete within the
	// descriptor's timeout.
	ErrConnectTimeout = errors.New("connect timeout")
)

// CredentialError indicates key material could not be read or decoded.
type CredentialError struct {
	Slug string
	Err  error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("load credential for %q: %v", e.Slug, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ConnectError wraps a transport-reported dial failure.
type ConnectError struct {
	Slug string
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("connect to %q at %s: %v", e.Slug, e.Addr, e.Err)
	}
	return fmt.Sprintf("connect to %q: %v", e.Slug, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
