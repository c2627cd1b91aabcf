package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"k8s.io/utils/clock"
)

const (
	DefaultQueueKey     = "analytics_queue"
	DefaultMaxQueueSize = 100
)

// Record kinds stored by OfflineProvider.
const (
	RecordTrack    = "track"
	RecordScreen   = "screen"
	RecordIdentify = "identify"
	RecordReset    = "reset"
)

// Record is one queued analytics call. The persisted queue is a JSON array
// of records.
type Record struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Store is the silent key-value contract the provider persists through.
// *store.KV implements it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// OfflineConfig holds OfflineProvider tunables.
type OfflineConfig struct {
	Key          string
	MaxQueueSize int
}

// DefaultOfflineConfig returns the production settings.
func DefaultOfflineConfig() OfflineConfig {
	return OfflineConfig{Key: DefaultQueueKey, MaxQueueSize: DefaultMaxQueueSize}
}

var _ Provider = (*OfflineProvider)(nil)

// OfflineProvider queues every call, persists the queue and flushes it to a
// Sink in batches.
//
// Unlike the mutation queue there is no per-record retry: a successful flush
// removes the batch it sent, a failed flush keeps everything. The queue is
// not cleared wholesale; records appended while a flush is in flight stay
// queued for the next one. When the queue grows past MaxQueueSize the
// oldest records are dropped, sent or not.
//
// Every append starts a flush in the background; use Wait to block until
// those have finished.
type OfflineProvider struct {
	cfg    OfflineConfig
	store  Store
	sink   Sink
	clock  clock.PassiveClock
	logger *slog.Logger

	mu       sync.Mutex
	entries  []entry
	nextSeq  uint64
	flushing bool

	persistMu sync.Mutex
	flushes   sync.WaitGroup
}

type entry struct {
	seq uint64
	rec Record
}

// OfflineOption configures an OfflineProvider.
type OfflineOption func(*OfflineProvider)

// WithOfflineConfig replaces DefaultOfflineConfig; zero fields keep defaults.
func WithOfflineConfig(cfg OfflineConfig) OfflineOption {
	return func(p *OfflineProvider) {
		if cfg.Key != "" {
			p.cfg.Key = cfg.Key
		}
		if cfg.MaxQueueSize > 0 {
			p.cfg.MaxQueueSize = cfg.MaxQueueSize
		}
	}
}

// WithOfflineClock sets the clock used for record timestamps.
func WithOfflineClock(c clock.PassiveClock) OfflineOption {
	return func(p *OfflineProvider) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithOfflineLogger sets the logger.
func WithOfflineLogger(l *slog.Logger) OfflineOption {
	return func(p *OfflineProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewOfflineProvider creates a provider persisting through store and
// flushing to sink.
func NewOfflineProvider(store Store, sink Sink, opts ...OfflineOption) *OfflineProvider {
	p := &OfflineProvider{
		cfg:    DefaultOfflineConfig(),
		store:  store,
		sink:   sink,
		clock:  clock.RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize loads the persisted queue and starts a flush. A corrupt queue
// is logged and dropped.
func (p *OfflineProvider) Initialize(ctx context.Context) error {
	var loaded []Record
	if raw, ok := p.store.Get(ctx, p.cfg.Key); ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
			p.logger.Warn("failed to load analytics queue", "key", p.cfg.Key, "error", err)
			loaded = nil
		}
	}

	p.mu.Lock()
	restored := make([]entry, 0, len(loaded)+len(p.entries))
	for _, r := range loaded {
		p.nextSeq++
		restored = append(restored, entry{seq: p.nextSeq, rec: r})
	}
	p.entries = append(restored, p.entries...)
	p.trimLocked()
	p.mu.Unlock()

	p.logger.Info("analytics initialized", "provider", "offline", "queued", len(loaded))
	p.triggerFlush()
	return nil
}

func (p *OfflineProvider) Track(ctx context.Context, event Event, props Properties) {
	p.add(ctx, RecordTrack, map[string]any{"event": event, "properties": props})
}

func (p *OfflineProvider) Screen(ctx context.Context, name string, props Properties) {
	p.add(ctx, RecordScreen, map[string]any{"name": name, "properties": props})
}

func (p *OfflineProvider) Identify(ctx context.Context, userID string, props *UserProperties) {
	p.add(ctx, RecordIdentify, map[string]any{"userId": userID, "properties": props})
}

func (p *OfflineProvider) Reset(ctx context.Context) {
	p.add(ctx, RecordReset, map[string]any{})
}

func (p *OfflineProvider) add(ctx context.Context, typ string, data map[string]any) {
	raw, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("dropping analytics record", "type", typ, "error", err)
		return
	}

	p.mu.Lock()
	p.nextSeq++
	p.entries = append(p.entries, entry{
		seq: p.nextSeq,
		rec: Record{Type: typ, Data: raw, Timestamp: p.clock.Now().UnixMilli()},
	})
	p.trimLocked()
	p.mu.Unlock()

	p.persist(ctx)
	p.triggerFlush()
}

// trimLocked keeps the newest MaxQueueSize entries.
func (p *OfflineProvider) trimLocked() {
	if over := len(p.entries) - p.cfg.MaxQueueSize; over > 0 {
		p.entries = append([]entry(nil), p.entries[over:]...)
	}
}

func (p *OfflineProvider) persist(ctx context.Context) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	p.mu.Lock()
	recs := p.recordsLocked()
	p.mu.Unlock()

	data, err := json.Marshal(recs)
	if err != nil {
		p.logger.Warn("failed to encode analytics queue", "error", err)
		return
	}
	p.store.Set(context.WithoutCancel(ctx), p.cfg.Key, string(data))
}

func (p *OfflineProvider) recordsLocked() []Record {
	recs := make([]Record, len(p.entries))
	for i, e := range p.entries {
		recs[i] = e.rec
	}
	return recs
}

// Pending returns a copy of the queued records, oldest first.
func (p *OfflineProvider) Pending() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordsLocked()
}

func (p *OfflineProvider) triggerFlush() {
	p.flushes.Add(1)
	go func() {
		defer p.flushes.Done()
		if err := p.Flush(context.Background()); err != nil {
			p.logger.Warn("failed to flush analytics queue", "error", err)
		}
	}()
}

// Flush sends everything queued to the sink. It is a no-op when the queue is
// empty or another flush is running. On success only the records in the
// sent batch are removed and the queue persisted; on failure nothing changes.
func (p *OfflineProvider) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.flushing || len(p.entries) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.flushing = true
	batch := p.recordsLocked()
	lastSeq := p.entries[len(p.entries)-1].seq
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.flushing = false
		p.mu.Unlock()
	}()

	if err := p.sink.Send(ctx, batch); err != nil {
		return fmt.Errorf("send %d analytics records: %w", len(batch), err)
	}

	p.mu.Lock()
	kept := p.entries[:0:0]
	for _, e := range p.entries {
		if e.seq > lastSeq {
			kept = append(kept, e)
		}
	}
	p.entries = kept
	p.mu.Unlock()

	p.persist(ctx)
	return nil
}

// Wait blocks until every background flush started so far has returned.
// Flushes started by appends on other goroutines after Wait begins may or
// may not be waited for.
func (p *OfflineProvider) Wait() {
	p.flushes.Wait()
}
