package netstate

import (
	"context"
	"sync"
)

// State is one connectivity observation.
// Connected is nil when the platform could not tell.
type State struct {
	Connected *bool  `json:"isConnected,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Online reports whether the state counts as online.
// Unknown connectivity counts as online.
func (s State) Online() bool {
	return s.Connected == nil || *s.Connected
}

// StateOf returns a State with a known connectivity value.
func StateOf(connected bool, typ string) State {
	return State{Connected: &connected, Type: typ}
}

// Source provides connectivity to the queues.
type Source interface {
	// Fetch resolves the current state immediately.
	Fetch(ctx context.Context) (State, error)
	// Subscribe registers fn for every change and returns an idempotent unsubscribe.
	Subscribe(fn func(State)) (unsubscribe func())
}

// listeners is a registry of change callbacks called in registration order.
type listeners struct {
	mu      sync.Mutex
	next    uint64
	entries []listener
}

type listener struct {
	id uint64
	fn func(State)
}

func (l *listeners) add(fn func(State)) func() {
	l.mu.Lock()
	l.next++
	id := l.next
	l.entries = append(l.entries, listener{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// emit calls every listener outside the lock so a callback may unsubscribe.
func (l *listeners) emit(s State) {
	l.mu.Lock()
	fns := make([]func(State), len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (l *listeners) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
