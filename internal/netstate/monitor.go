package netstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

var _ Source = (*Monitor)(nil)

// Monitor caches the connectivity of an underlying Source and re-broadcasts
// its changes.
//
// Thread-safety: all methods are safe for concurrent use. Subscriber
// callbacks run in the goroutine that delivered the change.
type Monitor struct {
	src    Source
	logger *slog.Logger

	mu    sync.Mutex
	state State
	unsub func()

	subs listeners
}

// NewMonitor wraps src. A nil logger uses slog.Default().
func NewMonitor(src Source, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{src: src, logger: logger}
}

// Start subscribes to the source and resolves an immediate fetch.
// The subscription is taken first so no change between the two is lost.
// Calling Start on a started monitor returns the cached state.
func (m *Monitor) Start(ctx context.Context) (State, error) {
	m.mu.Lock()
	if m.unsub != nil {
		st := m.state
		m.mu.Unlock()
		return st, nil
	}
	m.unsub = m.src.Subscribe(m.handleChange)
	m.mu.Unlock()

	st, err := m.src.Fetch(ctx)
	if err != nil {
		m.Stop()
		return State{}, fmt.Errorf("fetch network state: %w", err)
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	m.logger.Debug("network monitor started", "online", st.Online(), "type", st.Type)
	return st, nil
}

// Stop releases the source subscription. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// State returns the latest known state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Online reports whether the latest known state counts as online.
func (m *Monitor) Online() bool {
	return m.State().Online()
}

// Fetch asks the source again and caches the answer.
func (m *Monitor) Fetch(ctx context.Context) (State, error) {
	st, err := m.src.Fetch(ctx)
	if err != nil {
		return State{}, err
	}
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	return st, nil
}

func (m *Monitor) Subscribe(fn func(State)) func() {
	return m.subs.add(fn)
}

func (m *Monitor) handleChange(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	m.logger.Debug("network state changed", "online", s.Online(), "type", s.Type)
	m.subs.emit(s)
}
