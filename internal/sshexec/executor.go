// Package sshexec runs single commands over pooled SSH connections.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/mkvold/shellbridge/internal/logging"
	"github.com/mkvold/shellbridge/internal/registry"
	"github.com/mkvold/shellbridge/internal/sshpool"
)

var (
	// ErrExecChannel indicates the exec channel could not be opened on an
	// otherwise-live connection.
	ErrExecChannel = errors.New("open exec channel")

	// ErrStream indicates a failure while draining command output.
	ErrStream = errors.New("command stream")
)

// SSHError is the single error type that crosses the executor boundary.
// It always carries the server slug the failure belongs to.
type SSHError struct {
	Slug string
	Err  error
}

func (e *SSHError) Error() string {
	slug := e.Slug
	if slug == "" {
		slug = "unknown"
	}
	return fmt.Sprintf("SSH error [%s]: %v", slug, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// Result is the outcome of one executed command. It is produced exactly
// once per call and never partially.
type Result struct {
	Slug     string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Record describes a completed or failed execution for history purposes.
type Record struct {
	ID        string
	Slug      string
	Command   string
	ExitCode  int
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder receives a record of every execution. Implementations must not
// block the caller on failure; recording is best-effort.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// Executor resolves slugs, acquires pooled connections, and runs commands.
type Executor struct {
	reg      *registry.Registry
	pool     *sshpool.Pool
	recorder Recorder
	log      zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder attaches an execution recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// New creates an Executor over the given registry and pool.
func New(reg *registry.Registry, pool *sshpool.Pool, opts ...Option) *Executor {
	e := &Executor{
		reg:  reg,
		pool: pool,
		log:  logging.Component("sshexec"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one command on the server named by slug; an empty slug
// targets the registry's default server. The command runs without a PTY and
// is never retried. Every failure is returned as a *SSHError carrying the
// resolved slug.
func (e *Executor) Execute(ctx context.Context, command, slug string) (*Result, error) {
	resolved := slug
	if resolved == "" {
		resolved = e.reg.DefaultSlug()
	}

	execID := uuid.NewString()
	started := time.Now()
	log := e.log.With().
		Str("server", resolved).
		Str("exec_id", execID).
		Str("command", logging.RedactCommand(command)).
		Logger()

	rec := Record{
		ID:        execID,
		Slug:      resolved,
		Command:   command,
		StartedAt: started,
	}

	if command == "" {
		err := &SSHError{Slug: resolved, Err: errors.New("empty command")}
		e.record(ctx, rec, nil, err)
		return nil, err
	}

	client, err := e.pool.Acquire(ctx, resolved)
	if err != nil {
		werr := &SSHError{Slug: resolved, Err: err}
		log.Warn().Err(err).Msg("acquire connection failed")
		e.record(ctx, rec, nil, werr)
		return nil, werr
	}

	session, err := client.NewSession()
	if err != nil {
		// The connection died between acquire and exec; evict it so the
		// next call redials.
		e.pool.Invalidate(resolved, client)
		werr := &SSHError{Slug: resolved, Err: fmt.Errorf("%w: %w", ErrExecChannel, err)}
		log.Warn().Err(err).Msg("open session failed")
		e.record(ctx, rec, nil, werr)
		return nil, werr
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		// Abort the stalled channel; partial output is discarded.
		session.Close()
		<-done
		werr := &SSHError{Slug: resolved, Err: fmt.Errorf("%w: %w", ErrStream, ctx.Err())}
		e.record(ctx, rec, nil, werr)
		return nil, werr
	case runErr = <-done:
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitStatus()
		case errors.As(runErr, &missingErr):
			// Transport reported no exit status; treat as success.
			exitCode = 0
		default:
			// Stream-level failure after a successful channel open does not
			// evict the connection.
			werr := &SSHError{Slug: resolved, Err: fmt.Errorf("%w: %w", ErrStream, runErr)}
			log.Warn().Err(runErr).Msg("command stream failed")
			e.record(ctx, rec, nil, werr)
			return nil, werr
		}
	}

	result := &Result{
		Slug:     resolved,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
	log.Info().
		Int("exit_code", exitCode).
		Dur("duration", time.Since(started)).
		Msg("command executed")
	e.record(ctx, rec, result, nil)
	return result, nil
}

func (e *Executor) record(ctx context.Context, rec Record, result *Result, err error) {
	if e.recorder == nil {
		return
	}
	rec.Duration = time.Since(rec.StartedAt)
	if result != nil {
		rec.ExitCode = result.ExitCode
	} else {
		rec.ExitCode = -1
	}
	if err != nil {
		rec.Error = err.Error()
	}
	e.recorder.Record(context.WithoutCancel(ctx), rec)
}
