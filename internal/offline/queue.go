package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"k8s.io/utils/clock"

	"github.com/roach88/offlineq/internal/mutation"
	"github.com/roach88/offlineq/internal/netstate"
	"github.com/roach88/offlineq/internal/report"
)

// Breadcrumb categories.
const (
	CategoryQueue   = "offline_queue"
	CategoryNetwork = "network"
)

// Store is the silent key-value contract the queue persists through.
// *store.KV implements it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// Handler performs the real write for one mutation type. A non-nil error
// counts as a failed attempt.
type Handler func(ctx context.Context, payload json.RawMessage) error

// State is the queue's lifecycle state.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Queue is the offline mutation queue. Construct one per application with
// New and pass it to whatever needs it.
//
// Thread-safety: all methods are safe for concurrent use. Handlers are
// never called concurrently with each other.
type Queue struct {
	cfg      Config
	store    Store
	network  netstate.Source
	reporter report.Reporter
	ids      mutation.IDGenerator
	clock    clock.Clock
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	queue      []mutation.Mutation
	handlers   map[string]Handler
	online     bool
	processing bool
	unsub      func()
	lifeCtx    context.Context
	cancel     context.CancelFunc

	// persistMu orders writes so the last write carries the latest list.
	persistMu sync.Mutex

	// idle is signalled on mu whenever processing goes false.
	idle *sync.Cond
}

// New creates an uninitialized queue persisting through store and following
// network for connectivity.
func New(store Store, network netstate.Source, opts ...Option) *Queue {
	q := &Queue{
		cfg:      DefaultConfig(),
		store:    store,
		network:  network,
		reporter: report.Nop{},
		ids:      mutation.UUIDv7Generator{},
		clock:    clock.RealClock{},
		logger:   slog.Default(),
		handlers: make(map[string]Handler),
		online:   true,
	}
	q.idle = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Config returns the effective configuration.
func (q *Queue) Config() Config {
	return q.cfg
}

// Initialize loads the persisted list, subscribes to network changes and
// reads the initial connectivity. Processing starts right away when online.
//
// A missing or corrupt persisted list loads as empty. A failed network
// fetch undoes the subscription and returns the error; Initialize may then
// be called again.
func (q *Queue) Initialize(ctx context.Context) error {
	q.mu.Lock()
	if q.state != Uninitialized {
		q.mu.Unlock()
		return ErrAlreadyInitialized
	}
	q.state = Initializing
	q.mu.Unlock()

	loaded := q.load(ctx)
	unsub := q.network.Subscribe(q.handleNetworkChange)

	st, err := q.network.Fetch(ctx)
	if err != nil {
		unsub()
		q.mu.Lock()
		q.state = Uninitialized
		q.mu.Unlock()
		return fmt.Errorf("initialize offline queue: %w", err)
	}

	lifeCtx, cancel := context.WithCancel(context.Background())

	q.mu.Lock()
	q.queue = loaded
	q.online = st.Online()
	q.unsub = unsub
	q.lifeCtx, q.cancel = lifeCtx, cancel
	q.state = Ready
	size, online := len(q.queue), q.online
	q.mu.Unlock()

	q.logger.Info("offline queue initialized", "key", q.cfg.Key, "pending", size, "online", online)

	if online {
		q.trigger()
	}

	q.reporter.AddBreadcrumb(report.Breadcrumb{
		Category: CategoryQueue,
		Message:  "Initialized",
		Data:     map[string]any{"queueSize": size, "isOnline": online},
		Level:    report.LevelInfo,
	})
	return nil
}

func (q *Queue) load(ctx context.Context) []mutation.Mutation {
	raw, ok := q.store.Get(ctx, q.cfg.Key)
	if !ok {
		return []mutation.Mutation{}
	}
	list, err := mutation.Decode(raw)
	if err != nil {
		q.logger.Error("failed to load queue, starting empty", "key", q.cfg.Key, "error", err)
	}
	return list
}

// Destroy unsubscribes from the network, cancels any running pass and
// waits for it to stop. Mutations not yet processed stay persisted. Safe to
// call on a queue that was never initialized, and more than once.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if q.state == Uninitialized {
		q.mu.Unlock()
		return
	}
	unsub, cancel := q.unsub, q.cancel
	q.unsub, q.cancel = nil, nil
	q.state = Uninitialized
	q.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}

	q.mu.Lock()
	for q.processing {
		q.idle.Wait()
	}
	q.queue = nil
	q.mu.Unlock()
}

// State returns the lifecycle state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// RegisterHandler sets the handler for typ. The last registration for a
// type wins. Handlers may be registered before Initialize.
func (q *Queue) RegisterHandler(typ string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[mutation.NormalizeType(typ)] = h
}

// Enqueue records a new mutation and persists the list. When online a
// processing pass is started in the background. The returned ID is usable
// immediately.
//
// payload may be any JSON-marshalable value; json.RawMessage and []byte are
// taken as already-encoded JSON.
func (q *Queue) Enqueue(ctx context.Context, typ string, payload any, userID string) (string, error) {
	t := mutation.NormalizeType(typ)
	if t == "" {
		return "", ErrEmptyType
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	if q.state != Ready {
		q.mu.Unlock()
		return "", ErrNotInitialized
	}
	m := mutation.Mutation{
		ID:        q.ids.Generate(),
		Type:      t,
		Payload:   raw,
		Timestamp: q.clock.Now().UnixMilli(),
		Retries:   0,
		UserID:    userID,
	}
	q.queue = append(q.queue, m)
	online := q.online
	q.mu.Unlock()

	q.persist(ctx)

	q.reporter.AddBreadcrumb(report.Breadcrumb{
		Category: CategoryQueue,
		Message:  "Mutation queued",
		Data:     map[string]any{"type": m.Type, "id": m.ID, "isOnline": online},
		Level:    report.LevelInfo,
	})
	q.logger.Debug("mutation queued", "id", m.ID, "type", m.Type, "online", online)

	if online {
		q.trigger()
	}
	return m.ID, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return b, nil
	}
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
	}
	return append(json.RawMessage(nil), raw...), nil
}

// Dequeue removes the mutation with id and persists the list. Removing an
// unknown id is a no-op, though the list is still persisted.
func (q *Queue) Dequeue(ctx context.Context, id string) error {
	q.mu.Lock()
	if q.state != Ready {
		q.mu.Unlock()
		return ErrNotInitialized
	}
	q.removeLocked(id)
	q.mu.Unlock()

	q.persist(ctx)
	return nil
}

func (q *Queue) removeLocked(id string) bool {
	for i := range q.queue {
		if q.queue[i].ID == id {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return true
		}
	}
	return false
}

// persist writes the current list. Storage failures are handled by the Store.
func (q *Queue) persist(ctx context.Context) {
	q.persistMu.Lock()
	defer q.persistMu.Unlock()

	q.mu.Lock()
	data, err := mutation.Encode(q.queue)
	q.mu.Unlock()
	if err != nil {
		q.logger.Error("failed to encode queue", "error", err)
		return
	}
	// A cancelled caller must not lose the write.
	q.store.Set(context.WithoutCancel(ctx), q.cfg.Key, data)
}

// PendingMutations returns a copy of the queued mutations in FIFO order.
func (q *Queue) PendingMutations() []mutation.Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]mutation.Mutation, len(q.queue))
	for i, m := range q.queue {
		out[i] = m.Clone()
	}
	return out
}

func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *Queue) HasPendingMutations() bool {
	return q.PendingCount() > 0
}

// IsOnline returns the last connectivity the queue observed.
func (q *Queue) IsOnline() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// IsProcessing reports whether a pass is running.
func (q *Queue) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

func (q *Queue) handleNetworkChange(s netstate.State) {
	q.mu.Lock()
	wasOffline := !q.online
	q.online = s.Online()
	ready := q.state == Ready
	nowOnline := q.online
	q.mu.Unlock()

	var connected any
	if s.Connected != nil {
		connected = *s.Connected
	}
	q.reporter.AddBreadcrumb(report.Breadcrumb{
		Category: CategoryNetwork,
		Message:  "Connection changed",
		Data:     map[string]any{"isConnected": connected, "type": s.Type},
		Level:    report.LevelInfo,
	})

	if ready && wasOffline && nowOnline {
		q.logger.Info("connection restored, processing queue")
		q.trigger()
	}
}
