package netstate

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/roach88/offlineq/internal/testutil"
)

func TestState_Online(t *testing.T) {
	assert.True(t, State{}.Online(), "unknown connectivity counts as online")
	assert.True(t, StateOf(true, "wifi").Online())
	assert.False(t, StateOf(false, "none").Online())
}

func TestManual_SetNotifiesInOrder(t *testing.T) {
	m := NewManual(StateOf(true, "wifi"))

	var got []string
	m.Subscribe(func(s State) { got = append(got, "first") })
	m.Subscribe(func(s State) { got = append(got, "second") })

	m.SetConnected(false)
	assert.Equal(t, []string{"first", "second"}, got)

	st, err := m.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Online())
	assert.Equal(t, "manual", st.Type)
}

func TestManual_UnsubscribeIdempotent(t *testing.T) {
	m := NewManual(State{})

	calls := 0
	unsubA := m.Subscribe(func(State) { calls++ })
	unsubB := m.Subscribe(func(State) {})
	require.Equal(t, 2, m.Subscribers())

	unsubA()
	unsubA()
	assert.Equal(t, 1, m.Subscribers(), "second unsubscribe must not remove another listener")

	m.SetConnected(true)
	assert.Equal(t, 0, calls)

	unsubB()
	assert.Equal(t, 0, m.Subscribers())
}

func TestManual_FetchError(t *testing.T) {
	m := NewManual(State{})
	m.SetFetchError(errors.New("netinfo unavailable"))

	_, err := m.Fetch(context.Background())
	require.Error(t, err)

	m.SetFetchError(nil)
	_, err = m.Fetch(context.Background())
	require.NoError(t, err)
}

func TestMonitor_StartFetchesAndSubscribes(t *testing.T) {
	src := NewManual(StateOf(false, "none"))
	mon := NewMonitor(src, testutil.DiscardLogger())

	st, err := mon.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Online())
	assert.False(t, mon.Online())
	assert.Equal(t, 1, src.Subscribers())

	var seen []bool
	mon.Subscribe(func(s State) { seen = append(seen, s.Online()) })

	src.SetConnected(true)
	src.SetConnected(true)
	src.SetConnected(false)

	assert.Equal(t, []bool{true, true, false}, seen, "every change is forwarded, no debouncing")
	assert.False(t, mon.Online())
}

func TestMonitor_StartTwiceKeepsOneSubscription(t *testing.T) {
	src := NewManual(StateOf(true, "wifi"))
	mon := NewMonitor(src, testutil.DiscardLogger())

	_, err := mon.Start(context.Background())
	require.NoError(t, err)
	_, err = mon.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, src.Subscribers())
}

func TestMonitor_StartFetchFailureReleasesSubscription(t *testing.T) {
	src := NewManual(State{})
	src.SetFetchError(errors.New("boom"))
	mon := NewMonitor(src, testutil.DiscardLogger())

	_, err := mon.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch network state")
	assert.Equal(t, 0, src.Subscribers())
}

func TestMonitor_StopIdempotent(t *testing.T) {
	src := NewManual(State{})
	mon := NewMonitor(src, testutil.DiscardLogger())

	assert.NotPanics(t, mon.Stop, "stop before start")

	_, err := mon.Start(context.Background())
	require.NoError(t, err)
	mon.Stop()
	mon.Stop()
	assert.Equal(t, 0, src.Subscribers())
}

func TestMonitor_FetchRefreshesCache(t *testing.T) {
	src := NewManual(StateOf(true, "wifi"))
	mon := NewMonitor(src, testutil.DiscardLogger())

	st, err := mon.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Online())
	assert.Equal(t, "wifi", mon.State().Type)
}

func listenLocal(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln
}

func TestProbe_Fetch(t *testing.T) {
	ln := listenLocal(t)
	p := NewProbe(ln.Addr().String(), time.Second, WithDialTimeout(500*time.Millisecond))

	st, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Online())
	assert.Equal(t, "tcp", st.Type)

	ln.Close()
	st, err = p.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Online())
}

func TestProbe_EmitsOnlyOnChange(t *testing.T) {
	ln := listenLocal(t)
	fc := testingclock.NewFakeClock(time.Now())
	p := NewProbe(ln.Addr().String(), time.Second,
		WithProbeClock(fc),
		WithDialTimeout(500*time.Millisecond),
	)

	_, err := p.Fetch(context.Background())
	require.NoError(t, err)

	changes := make(chan State, 4)
	unsub := p.Subscribe(func(s State) { changes <- s })
	defer unsub()

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	// Still reachable: no change to report.
	fc.Step(time.Second)
	select {
	case s := <-changes:
		t.Fatalf("unexpected change %+v", s)
	case <-time.After(100 * time.Millisecond):
	}

	ln.Close()
	fc.Step(time.Second)

	select {
	case s := <-changes:
		assert.False(t, s.Online())
	case <-time.After(2 * time.Second):
		t.Fatal("probe did not report going offline")
	}
}

func TestProbe_StartTwiceAndStop(t *testing.T) {
	p := NewProbe("127.0.0.1:1", 0, WithProbeClock(testingclock.NewFakeClock(time.Now())))

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))

	p.Stop()
	p.Stop()
}
