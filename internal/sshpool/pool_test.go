package sshpool

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/mkvold/shellbridge/internal/registry"
	"github.com/mkvold/shellbridge/internal/sshtest"
)

func poolFor(t *testing.T, descriptors ...registry.Descriptor) *Pool {
	t.Helper()
	reg, err := registry.Load(descriptors)
	require.NoError(t, err)
	p := New(reg)
	t.Cleanup(p.ReleaseAll)
	return p
}

func serverDescriptor(srv *sshtest.Server, slug string) registry.Descriptor {
	return registry.Descriptor{
		Slug:     slug,
		Host:     srv.Host,
		Port:     srv.Port,
		User:     "deploy",
		Password: sshtest.Password,
		Timeout:  5 * time.Second,
	}
}

func TestAcquireUnknownServer(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	pool := poolFor(t, serverDescriptor(srv, "web1"))

	_, err := pool.Acquire(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrUnknownServer))
	assert.Zero(t, srv.DialCount())
}

func TestAcquireNoCredentialBeforeDial(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	desc := serverDescriptor(srv, "web1")
	desc.Password = ""
	pool := poolFor(t, desc)

	_, err := pool.Acquire(context.Background(), "web1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCredential))
	// Credential resolution failed before any network I/O.
	assert.Zero(t, srv.DialCount())
}

func TestAcquireWithKeyFile(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	desc := serverDescriptor(srv, "web1")
	desc.Password = ""
	desc.PrivateKeyPath = srv.KeyPath
	pool := poolFor(t, desc)

	client, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestAcquireWithInlineKey(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	desc := serverDescriptor(srv, "web1")
	desc.Password = ""
	desc.PrivateKey = srv.KeyB64
	pool := poolFor(t, desc)

	client, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestAcquireReusesLiveConnection(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	pool := poolFor(t, serverDescriptor(srv, "web1"))

	first, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)
	second, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, srv.DialCount())
	assert.Equal(t, 1, pool.ConnectionCount())
}

func TestAcquireSingleFlight(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler, sshtest.WithHandshakeDelay(300*time.Millisecond))
	pool := poolFor(t, serverDescriptor(srv, "web1"))

	const callers = 4
	clients := make([]*ssh.Client, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i], errs[i] = pool.Acquire(context.Background(), "web1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, clients[0], clients[i])
	}
	// All callers shared exactly one dial attempt.
	assert.Equal(t, 1, srv.DialCount())
}

func TestAcquireSingleFlightSharesFailure(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler, sshtest.WithHandshakeDelay(200*time.Millisecond))
	desc := serverDescriptor(srv, "web1")
	desc.Password = "wrong-password"
	pool := poolFor(t, desc)

	const callers = 3
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = pool.Acquire(context.Background(), "web1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		var connErr *ConnectError
		require.ErrorAs(t, errs[i], &connErr)
		assert.Equal(t, "web1", connErr.Slug)
	}
	assert.Equal(t, 1, srv.DialCount())
	assert.Zero(t, pool.ConnectionCount())
}

func TestAcquireTimeout(t *testing.T) {
	// A listener that never answers the SSH handshake.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	host, portStr, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	pool := poolFor(t, registry.Descriptor{
		Slug:     "stuck",
		Host:     host,
		Port:     port,
		User:     "deploy",
		Password: "x",
		Timeout:  300 * time.Millisecond,
	})

	start := time.Now()
	_, err = pool.Acquire(context.Background(), "stuck")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectTimeout), "got %v", err)
	assert.Less(t, elapsed, 2*time.Second, "timeout must be bounded by the descriptor timeout")
	assert.Zero(t, pool.ConnectionCount())
}

func TestAcquireCallerCancellation(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler, sshtest.WithHandshakeDelay(2*time.Second))
	pool := poolFor(t, serverDescriptor(srv, "web1"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := pool.Acquire(ctx, "web1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestEvictionOnTransportClose(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	pool := poolFor(t, serverDescriptor(srv, "web1"))

	first, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)

	srv.CloseClientConns()

	// The close watcher evicts the dead entry.
	require.Eventually(t, func() bool {
		return pool.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	second, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, srv.DialCount())
}

func TestInvalidate(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	pool := poolFor(t, serverDescriptor(srv, "web1"))

	client, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)

	pool.Invalidate("web1", client)
	assert.Zero(t, pool.ConnectionCount())

	// Idempotent for a client that is no longer stored.
	pool.Invalidate("web1", client)

	_, err = pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.DialCount())
}

func TestInvalidateIgnoresStaleClient(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	pool := poolFor(t, serverDescriptor(srv, "web1"))

	stale, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)
	pool.Release("web1")

	current, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)

	// Invalidating with the stale handle must not evict the current one.
	pool.Invalidate("web1", stale)
	assert.Equal(t, 1, pool.ConnectionCount())

	got, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)
	assert.Same(t, current, got)
}

func TestReleaseIdempotent(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	pool := poolFor(t, serverDescriptor(srv, "web1"))

	pool.Release("web1") // nothing tracked yet

	_, err := pool.Acquire(context.Background(), "web1")
	require.NoError(t, err)

	pool.Release("web1")
	assert.Zero(t, pool.ConnectionCount())
	pool.Release("web1")
}

func TestReleaseAll(t *testing.T) {
	srv := sshtest.Start(t, sshtest.EchoHandler)
	pool := poolFor(t,
		serverDescriptor(srv, "web1"),
		serverDescriptor(srv, "web2"),
		serverDescriptor(srv, "web3"),
	)

	// Safe with zero entries.
	pool.ReleaseAll()

	for _, slug := range []string{"web1", "web2"} {
		_, err := pool.Acquire(context.Background(), slug)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, pool.ConnectionCount())

	pool.ReleaseAll()
	assert.Zero(t, pool.ConnectionCount())

	// Safe to call again.
	pool.ReleaseAll()
}
