package netstate

import (
	"context"
	"sync"
)

var _ Source = (*Manual)(nil)

// Manual is a Source whose state is set by the program: tests, the CLI's
// offline mode and the daemon's PUT /network endpoint.
//
// Set notifies subscribers synchronously in the caller's goroutine.
type Manual struct {
	mu       sync.Mutex
	state    State
	fetchErr error
	subs     listeners
}

// NewManual creates a Manual source starting at initial.
func NewManual(initial State) *Manual {
	return &Manual{state: initial}
}

// Set records s and notifies every subscriber.
func (m *Manual) Set(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.subs.emit(s)
}

// SetConnected is Set with a known connectivity value and type "manual".
func (m *Manual) SetConnected(connected bool) {
	m.Set(StateOf(connected, "manual"))
}

// SetFetchError makes Fetch fail with err until cleared with nil.
func (m *Manual) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

func (m *Manual) Fetch(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return State{}, m.fetchErr
	}
	return m.state, nil
}

func (m *Manual) Subscribe(fn func(State)) func() {
	return m.subs.add(fn)
}

// Subscribers returns the number of live subscriptions.
func (m *Manual) Subscribers() int {
	return m.subs.len()
}
