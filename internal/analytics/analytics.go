// Package analytics tracks user behavior through a swappable provider.
//
// Development builds log every call (ConsoleProvider). Production builds
// queue calls, persist them and flush them in batches to a Sink
// (OfflineProvider). The environment is chosen explicitly by the caller.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"k8s.io/utils/clock"
)

// Environment selects the provider.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// ParseEnvironment maps a config string to an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case Development, Production:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("unknown environment %q (want %q or %q)", s, Development, Production)
	}
}

// Analytics is the application-facing tracker. Calls made before
// Initialize are dropped.
//
// Thread-safety: all methods are safe for concurrent use.
type Analytics struct {
	provider Provider
	clock    clock.PassiveClock
	logger   *slog.Logger

	initMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	userID      string
}

// Option configures Analytics.
type Option func(*Analytics)

// WithClock sets the clock used for the timestamp property.
func WithClock(c clock.PassiveClock) Option {
	return func(a *Analytics) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analytics) {
		if l != nil {
			a.logger = l
		}
	}
}

// New wraps provider.
func New(provider Provider, opts ...Option) *Analytics {
	a := &Analytics{
		provider: provider,
		clock:    clock.RealClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewForEnvironment picks the provider for env: a ConsoleProvider in
// development, an OfflineProvider over store and sink in production.
func NewForEnvironment(env Environment, store Store, sink Sink, cfg OfflineConfig, opts ...Option) (*Analytics, error) {
	a := New(nil, opts...)
	switch env {
	case Development:
		a.provider = NewConsoleProvider(a.logger)
	case Production:
		if store == nil || sink == nil {
			return nil, fmt.Errorf("%s analytics needs a store and a sink", env)
		}
		a.provider = NewOfflineProvider(store, sink,
			WithOfflineConfig(cfg),
			WithOfflineClock(a.clock),
			WithOfflineLogger(a.logger),
		)
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}
	return a, nil
}

// Provider returns the underlying provider.
func (a *Analytics) Provider() Provider {
	return a.provider
}

// Initialize initializes the provider and tracks app_open. Later calls are
// no-ops.
func (a *Analytics) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.Initialized() {
		return nil
	}
	if err := a.provider.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize analytics: %w", err)
	}

	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()

	a.Track(ctx, EventAppOpen, nil)
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (a *Analytics) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// Track records event with props plus a "timestamp" property in epoch
// milliseconds. props is not modified.
func (a *Analytics) Track(ctx context.Context, event Event, props Properties) {
	if !a.Initialized() {
		a.logger.Warn("analytics not initialized, call Initialize first", "event", string(event))
		return
	}
	out := make(Properties, len(props)+1)
	maps.Copy(out, props)
	out["timestamp"] = a.clock.Now().UnixMilli()
	a.provider.Track(ctx, event, out)
}

// Screen records a screen view.
func (a *Analytics) Screen(ctx context.Context, name string, props Properties) {
	if !a.Initialized() {
		return
	}
	a.provider.Screen(ctx, name, props)
}

// Identify attributes later calls to userID.
func (a *Analytics) Identify(ctx context.Context, userID string, props *UserProperties) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return
	}
	a.userID = userID
	a.mu.Unlock()

	a.provider.Identify(ctx, userID, props)
}

// Reset forgets the identified user, typically on logout.
func (a *Analytics) Reset(ctx context.Context) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return
	}
	a.userID = ""
	a.mu.Unlock()

	a.provider.Reset(ctx)
}

// UserID returns the identified user, or "" if none.
func (a *Analytics) UserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID
}
