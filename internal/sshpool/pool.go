// Package sshpool manages reusable SSH connections keyed by server slug.
//
// Connections are established lazily on first acquire. Concurrent acquires
// for the same slug share a single dial. A connection stays in the pool until
// the transport reports it closed, it is explicitly released, or the executor
// invalidates it after a failed session open; the next acquire then redials.
package sshpool

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	"github.com/mkvold/shellbridge/internal/logging"
	"github.com/mkvold/shellbridge/internal/registry"
)

// Pool holds at most one live SSH connection per configured server.
type Pool struct {
	reg *registry.Registry
	log zerolog.Logger

	mu      sync.Mutex
	clients map[string]*ssh.Client
	// gens invalidates in-flight dials: a dial only stores its result if no
	// release or eviction happened for the slug since the dial started.
	gens map[string]uint64

	sf singleflight.Group
}

// New creates a pool over the given registry.
func New(reg *registry.Registry) *Pool {
	return &Pool{
		reg:     reg,
		log:     logging.Component("sshpool"),
		clients: make(map[string]*ssh.Client),
		gens:    make(map[string]uint64),
	}
}

// Acquire returns a live connection for the slug, dialing if necessary.
// Concurrent calls for the same unconnected slug share one dial attempt and
// receive the same connection or the same failure. The caller context can
// abort the wait; the shared dial itself keeps running for other waiters.
func (p *Pool) Acquire(ctx context.Context, slug string) (*ssh.Client, error) {
	desc, err := p.reg.Get(slug)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if client := p.clients[slug]; client != nil {
		p.mu.Unlock()
		return client, nil
	}
	gen := p.gens[slug]
	p.mu.Unlock()

	ch := p.sf.DoChan(slug, func() (any, error) {
		return p.dial(desc, gen)
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ConnectError{Slug: slug, Err: ErrConnectTimeout}
		}
		return nil, &ConnectError{Slug: slug, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

// dial resolves the credential, opens the transport session bounded by the
// descriptor timeout, and stores the connection unless the slug was released
// while the dial was in flight.
func (p *Pool) dial(desc registry.Descriptor, gen uint64) (*ssh.Client, error) {
	auth, err := authMethods(desc)
	if err != nil {
		return nil, err
	}

	host, port := desc.Addr()
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	timeout := desc.ConnectTimeout()

	cfg := &ssh.ClientConfig{
		User:            desc.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	// The descriptor timeout must win even if the transport never signals
	// ready or error on its own.
	var (
		client  *ssh.Client
		dialErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		client, dialErr = ssh.Dial("tcp", addr, cfg)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		// Reap whatever the abandoned dial eventually produces.
		go func() {
			<-done
			if client != nil {
				client.Close()
			}
		}()
		return nil, &ConnectError{Slug: desc.Slug, Addr: addr, Err: ErrConnectTimeout}
	case <-done:
	}

	if dialErr != nil {
		var nerr net.Error
		if errors.As(dialErr, &nerr) && nerr.Timeout() {
			return nil, &ConnectError{Slug: desc.Slug, Addr: addr, Err: ErrConnectTimeout}
		}
		return nil, &ConnectError{Slug: desc.Slug, Addr: addr, Err: dialErr}
	}

	p.mu.Lock()
	if p.gens[desc.Slug] != gen {
		p.mu.Unlock()
		client.Close()
		return nil, &ConnectError{Slug: desc.Slug, Addr: addr, Err: errors.New("connection released during dial")}
	}
	p.clients[desc.Slug] = client
	p.mu.Unlock()

	go p.watch(desc.Slug, client)

	p.log.Info().Str("server", desc.Slug).Str("addr", addr).Msg("connected")
	return client, nil
}

// watch parks on the transport and evicts the entry the moment the
// underlying session reports closed, so future acquires redial instead of
// reusing a dead handle.
func (p *Pool) watch(slug string, client *ssh.Client) {
	err := client.Wait()

	p.mu.Lock()
	evicted := p.clients[slug] == client
	if evicted {
		delete(p.clients, slug)
		p.gens[slug]++
	}
	p.mu.Unlock()

	if evicted {
		p.log.Debug().Str("server", slug).AnErr("cause", err).Msg("connection closed, evicted from pool")
	}
}

// Invalidate evicts the entry for slug if it still holds the given client.
// Used after a session open fails on an apparently-live connection.
func (p *Pool) Invalidate(slug string, client *ssh.Client) {
	p.mu.Lock()
	if p.clients[slug] != client {
		p.mu.Unlock()
		return
	}
	delete(p.clients, slug)
	p.gens[slug]++
	p.mu.Unlock()

	if err := client.Close(); err != nil {
		p.log.Debug().Err(err).Str("server", slug).Msg("close invalidated connection")
	}
	p.log.Debug().Str("server", slug).Msg("connection invalidated")
}

// Release closes the entry for slug, live or pending. Idempotent; close
// errors are logged and dropped.
func (p *Pool) Release(slug string) {
	p.mu.Lock()
	client := p.clients[slug]
	delete(p.clients, slug)
	p.gens[slug]++
	p.mu.Unlock()

	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		p.log.Debug().Err(err).Str("server", slug).Msg("close released connection")
	}
	p.log.Debug().Str("server", slug).Msg("connection released")
}

// ReleaseAll closes every tracked connection. Pending dials in flight are
// abandoned; their eventual result is closed on arrival.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*ssh.Client)
	for _, slug := range p.reg.Slugs() {
		p.gens[slug]++
	}
	p.mu.Unlock()

	for slug, client := range clients {
		if client == nil {
			continue
		}
		if err := client.Close(); err != nil {
			p.log.Debug().Err(err).Str("server", slug).Msg("close connection at shutdown")
		}
	}
	if len(clients) > 0 {
		p.log.Info().Int("count", len(clients)).Msg("closed all connections")
	}
}

// ConnectionCount returns the number of live connections.
func (p *Pool) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
