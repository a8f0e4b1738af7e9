// Package writer serializes mutations against the SQLite store.
//
// SQLite supports a single writer at a time. Every component that
// mutates shared state (request lifecycle, sync job batches, webhook
// merges, server configuration) submits its write through a Serializer,
// which executes exactly one operation at a time in FIFO order. That is
// the sole point of sequential consistency in the system; reads run
// fully concurrently against the store.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultBaseDelay is the initial backoff after a lock-contention
	// failure.
	DefaultBaseDelay = 50 * time.Millisecond

	// DefaultMaxRetries bounds how often a single operation is retried
	// on lock contention before its error is surfaced to the caller.
	DefaultMaxRetries = 5
)

// ErrClosed is returned for operations submitted after shutdown.
var ErrClosed = errors.New("write serializer closed")

// ErrRetriesExhausted wraps the final lock error once an operation has
// used up its retry budget.
var ErrRetriesExhausted = errors.New("write retries exhausted")

type op struct {
	name string
	fn   func() error
	done chan error
}

// Serializer executes write operations one at a time with bounded
// retry on transient SQLite lock contention.
type Serializer struct {
	ops        chan op
	baseDelay  time.Duration
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithBaseDelay overrides the initial retry backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(s *Serializer) { s.baseDelay = d }
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(s *Serializer) { s.maxRetries = n }
}

// New creates a Serializer. Run must be started before Do is called.
func New(logger *slog.Logger, opts ...Option) *Serializer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Serializer{
		ops:        make(chan op, 256),
		baseDelay:  DefaultBaseDelay,
		maxRetries: DefaultMaxRetries,
		logger:     logger.With("component", "writer"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run drains the queue until ctx is canceled. It is meant to be owned
// by the server runner's errgroup.
func (s *Serializer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain(ctx.Err())
			return ctx.Err()
		case o := <-s.ops:
			o.done <- s.execute(ctx, o)
		}
	}
}

// drain rejects queued operations so callers don't block on shutdown.
func (s *Serializer) drain(cause error) {
	for {
		select {
		case o := <-s.ops:
			o.done <- fmt.Errorf("%w: %w", ErrClosed, cause)
		default:
			return
		}
	}
}

// execute runs one operation, retrying lock-contention failures with
// exponential backoff. The retried operation stays at the head of the
// queue: nothing else runs until it succeeds or exhausts its budget.
func (s *Serializer) execute(ctx context.Context, o op) error {
	for retries := 0; ; retries++ {
		err := o.fn()
		if err == nil {
			if retries > 0 {
				s.logger.Debug("write succeeded after retry", "op", o.name, "retries", retries)
			}
			return nil
		}
		if !isLockError(err) {
			return err
		}
		if retries >= s.maxRetries {
			s.logger.Error("write retries exhausted", "op", o.name, "retries", retries, "error", err)
			return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, o.name, err)
		}

		delay := s.baseDelay * (1 << retries)
		s.logger.Warn("database locked, retrying write", "op", o.name, "retry", retries+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Do submits fn to the queue and blocks until it has executed or ctx is
// canceled. The returned error is the operation's own error, a retry
// exhaustion, or the context error.
func (s *Serializer) Do(ctx context.Context, name string, fn func() error) error {
	o := op{name: name, fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.ops <- o:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-o.done:
		return err
	}
}

// isLockError reports whether err is transient SQLite lock contention.
// modernc.org/sqlite surfaces SQLITE_BUSY and SQLITE_LOCKED as string
// messages.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
