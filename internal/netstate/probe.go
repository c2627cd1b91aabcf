package netstate

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	// DefaultProbeInterval is the time between two dials.
	DefaultProbeInterval = 5 * time.Second

	// DefaultDialTimeout bounds a single dial.
	DefaultDialTimeout = 2 * time.Second

	probeType = "tcp"
)

var _ Source = (*Probe)(nil)

// Probe derives connectivity from TCP dials to a well-known address (the
// backend's API host in production). A successful dial means online.
// Subscribers are notified only when the result differs from the previous
// observation.
type Probe struct {
	addr        string
	interval    time.Duration
	dialTimeout time.Duration
	clock       clock.WithTicker
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)

	subs listeners

	mu     sync.Mutex
	last   *bool
	cancel context.CancelFunc
	done   chan struct{}
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithProbeClock overrides the ticker source.
func WithProbeClock(c clock.WithTicker) ProbeOption {
	return func(p *Probe) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// NewProbe creates a probe for addr ("host:port"). A non-positive interval
// uses DefaultProbeInterval.
func NewProbe(addr string, interval time.Duration, opts ...ProbeOption) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	p := &Probe{
		addr:        addr,
		interval:    interval,
		dialTimeout: DefaultDialTimeout,
		clock:       clock.RealClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	d := &net.Dialer{Timeout: p.dialTimeout}
	p.dial = d.DialContext
	return p
}

// Fetch dials once and records the result without notifying subscribers.
func (p *Probe) Fetch(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	ok := p.check(ctx)
	p.mu.Lock()
	p.last = &ok
	p.mu.Unlock()
	return StateOf(ok, probeType), nil
}

func (p *Probe) Subscribe(fn func(State)) func() {
	return p.subs.add(fn)
}

// Start begins periodic probing until ctx is cancelled or Stop is called.
func (p *Probe) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("probe already started")
	}

	// The ticker is created before the goroutine so the first tick is never missed.
	ticker := p.clock.NewTicker(p.interval)
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, ticker, p.done)
	return nil
}

// Stop halts probing and waits for the loop to exit. Idempotent.
func (p *Probe) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Probe) run(ctx context.Context, ticker clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			ok := p.check(ctx)
			if ctx.Err() != nil {
				return
			}
			p.observe(ok)
		}
	}
}

func (p *Probe) observe(ok bool) {
	p.mu.Lock()
	changed := p.last == nil || *p.last != ok
	p.last = &ok
	p.mu.Unlock()

	if changed {
		p.subs.emit(StateOf(ok, probeType))
	}
}

func (p *Probe) check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
