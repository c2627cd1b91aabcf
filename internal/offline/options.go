package offline

import (
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/roach88/offlineq/internal/mutation"
	"github.com/roach88/offlineq/internal/report"
)

// MissingHandlerPolicy decides what happens to a mutation whose type has
// no registered handler when the processor reaches it.
type MissingHandlerPolicy string

const (
	// DropMissing removes the mutation with a warning.
	DropMissing MissingHandlerPolicy = "drop"

	// KeepMissing leaves the mutation queued with a warning. It is retried on
	// every pass and never counts towards the retry ceiling.
	KeepMissing MissingHandlerPolicy = "keep"
)

// ParseMissingHandlerPolicy maps a config string to a policy.
// The empty string selects DropMissing.
func ParseMissingHandlerPolicy(s string) (MissingHandlerPolicy, error) {
	switch MissingHandlerPolicy(s) {
	case "", DropMissing:
		return DropMissing, nil
	case KeepMissing:
		return KeepMissing, nil
	default:
		return "", fmt.Errorf("unknown missing handler policy %q (want %q or %q)", s, DropMissing, KeepMissing)
	}
}

const (
	DefaultKey        = "offline_mutation_queue"
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Config holds the queue's tunables.
type Config struct {
	// Key is the store key holding the persisted list.
	Key string

	// MaxRetries is the number of failed attempts after which a mutation
	// is dropped and reported.
	MaxRetries int

	// RetryDelay is multiplied by a mutation's retry count to get the wait
	// after a failure.
	RetryDelay time.Duration

	MissingHandler MissingHandlerPolicy

	// HandlerTimeout bounds each handler call. Zero means no bound.
	HandlerTimeout time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Key:            DefaultKey,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
		MissingHandler: DropMissing,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Key == "" {
		c.Key = d.Key
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MissingHandler == "" {
		c.MissingHandler = d.MissingHandler
	}
	return c
}

// Option configures a Queue.
type Option func(*Queue)

// WithConfig replaces DefaultConfig. Zero fields keep their defaults except
// RetryDelay, where zero means no wait.
func WithConfig(cfg Config) Option {
	return func(q *Queue) {
		q.cfg = cfg.withDefaults()
	}
}

// WithReporter sets the error-reporting sink. Defaults to report.Nop.
func WithReporter(r report.Reporter) Option {
	return func(q *Queue) {
		if r != nil {
			q.reporter = r
		}
	}
}

// WithIDGenerator sets the mutation ID source. Defaults to UUIDv7.
func WithIDGenerator(g mutation.IDGenerator) Option {
	return func(q *Queue) {
		if g != nil {
			q.ids = g
		}
	}
}

// WithClock sets the clock used for timestamps and retry waits.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}
