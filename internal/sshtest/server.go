// Package sshtest runs a minimal in-process SSH server for tests. It
// authenticates a generated client key or a fixed password and answers exec
// requests with scripted output and exit status.
package sshtest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// Password accepted by the test server.
const Password = "sshtest-secret"

// ExecResult is what the server returns for one exec request.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecHandler maps a command string to its scripted result.
type ExecHandler func(command string) ExecResult

// EchoHandler answers every command with its own text on stdout.
func EchoHandler(command string) ExecResult {
	return ExecResult{Stdout: command + "\n"}
}

// Option configures the test server.
type Option func(*Server)

// WithHandshakeDelay delays the server side of every handshake, for
// exercising dial timeouts and overlapping acquires.
func WithHandshakeDelay(d time.Duration) Option {
	return func(s *Server) { s.handshakeDelay = d }
}

// WithRejectSessions makes the server refuse session channel opens while
// keeping the connection itself alive.
func WithRejectSessions() Option {
	return func(s *Server) { s.rejectSessions = true }
}

// Server is a running test SSH server.
type Server struct {
	Host    string
	Port    int
	KeyPath string // client private key, PEM on disk
	KeyB64  string // same key, base64-encoded PEM

	handler        ExecHandler
	handshakeDelay time.Duration
	rejectSessions bool

	listener net.Listener
	dials    atomic.Int64

	mu    sync.Mutex
	conns []net.Conn
}

// Start launches the server on a loopback port. It is shut down via
// t.Cleanup.
func Start(t *testing.T, handler ExecHandler, opts ...Option) *Server {
	t.Helper()

	s := &Server{handler: handler}
	for _, opt := range opts {
		opt(s)
	}

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("create host signer: %v", err)
	}

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientSSHPub, err := ssh.NewPublicKey(clientPub)
	if err != nil {
		t.Fatalf("convert client public key: %v", err)
	}

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientSSHPub.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, errAuth
		},
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if string(password) == Password {
				return &ssh.Permissions{}, nil
			}
			return nil, errAuth
		},
	}
	cfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.listener = listener

	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	s.Host = host
	s.Port, err = strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse listener port: %v", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(clientPriv, "")
	if err != nil {
		t.Fatalf("marshal client private key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(pemBlock)
	s.KeyPath = filepath.Join(t.TempDir(), "client.key")
	if err := os.WriteFile(s.KeyPath, pemBytes, 0o600); err != nil {
		t.Fatalf("write client key: %v", err)
	}
	s.KeyB64 = base64.StdEncoding.EncodeToString(pemBytes)

	go s.acceptLoop(cfg)
	t.Cleanup(s.Close)

	return s
}

// DialCount reports how many TCP connections the server has accepted.
func (s *Server) DialCount() int {
	return int(s.dials.Load())
}

// CloseClientConns force-closes every accepted connection, simulating a
// transport-level close under the client.
func (s *Server) CloseClientConns() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Close stops the listener and all connections.
func (s *Server) Close() {
	s.listener.Close()
	s.CloseClientConns()
}

func (s *Server) acceptLoop(cfg *ssh.ServerConfig) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.dials.Add(1)
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handleConn(conn, cfg)
	}
}

func (s *Server) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	defer conn.Close()

	if s.handshakeDelay > 0 {
		time.Sleep(s.handshakeDelay)
	}

	srvConn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer srvConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" || s.rejectSessions {
			newChan.Reject(ssh.Prohibited, "session channels not allowed")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			result := s.handler(payload.Command)
			if result.Stdout != "" {
				io.WriteString(ch, result.Stdout)
			}
			if result.Stderr != "" {
				ch.Stderr().Write([]byte(result.Stderr))
			}
			status := struct{ Status uint32 }{uint32(result.ExitCode)}
			ch.SendRequest("exit-status", false, ssh.Marshal(&status))
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

var errAuth = &authError{}

type authError struct{}

func (*authError) Error() string { return "authentication rejected" }
