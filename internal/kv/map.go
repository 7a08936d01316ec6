package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/engine"
	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/store"
)

// DefaultSentinel is the first key segment of conflict markers.
const DefaultSentinel = "_conflict"

// Map is a key/value view over the engine's canonical order.
type Map struct {
	eng      *engine.Engine
	index    *store.Index
	sentinel string
	local    model.WriterID
	mu       sync.Mutex
}

// Option configures a Map.
type Option func(*Map)

// WithSentinel sets the reserved first key segment for conflict markers.
func WithSentinel(sentinel string) Option {
	return func(m *Map) {
		m.sentinel = sentinel
	}
}

// WithLocal sets the writer Put appends to.
func WithLocal(w model.WriterID) Option {
	return func(m *Map) {
		m.local = w
	}
}

// New creates a map applying the engine's batches to index.
func New(eng *engine.Engine, index *store.Index, opts ...Option) *Map {
	m := &Map{
		eng:      eng,
		index:    index,
		sentinel: DefaultSentinel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sentinel returns the reserved first key segment.
func (m *Map) Sentinel() string {
	return m.sentinel
}

// Local returns the writer Put appends to.
func (m *Map) Local() model.WriterID {
	return m.local
}

func (m *Map) markerPrefix() []byte {
	return []byte(m.sentinel + "/")
}

// MarkerKey returns the conflict marker key for key.
func (m *Map) MarkerKey(key []byte) []byte {
	return append(m.markerPrefix(), key...)
}

// Reserved reports whether key lies in the conflict marker namespace.
func (m *Map) Reserved(key []byte) bool {
	return bytes.HasPrefix(key, m.markerPrefix())
}

type putOptions struct {
	clock    *clock.Clock
	isolated bool
}

// PutOption configures a single Put.
type PutOption func(*putOptions)

// WithClock appends with c instead of the latest known clock.
func WithClock(c clock.Clock) PutOption {
	return func(o *putOptions) {
		o.clock = &c
	}
}

// Isolated appends with a clock that knows only the local writer, so the
// put is concurrent with every other writer's entries.
func Isolated() PutOption {
	return func(o *putOptions) {
		o.isolated = true
	}
}

// Put appends a put operation to the local writer. The value becomes
// visible to Get after the next Update.
//
// Keys inside the conflict marker namespace are rejected with a
// ReservedKey error. By default the entry's clock is the latest knowledge
// of every writer.
func (m *Map) Put(ctx context.Context, key, value []byte, opts ...PutOption) (model.Entry, error) {
	if m.local == "" {
		return model.Entry{}, errors.New("put: map has no local writer")
	}
	if m.Reserved(key) {
		return model.Entry{}, fmt.Errorf("put: %w", engine.NewReservedKeyError(key))
	}

	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		c   clock.Clock
		err error
	)
	switch {
	case o.clock != nil:
		c = *o.clock
	case o.isolated:
		c, err = m.eng.Head(ctx, m.local)
	default:
		c, err = m.eng.Latest(ctx)
	}
	if err != nil {
		return model.Entry{}, fmt.Errorf("put: %w", err)
	}

	payload, err := model.EncodeOp(model.Op{Type: model.OpPut, Key: key, Value: value})
	if err != nil {
		return model.Entry{}, fmt.Errorf("put: %w", err)
	}

	entries, err := m.eng.Append(ctx, m.local, c, payload)
	if err != nil {
		return model.Entry{}, fmt.Errorf("put: %w", err)
	}

	slog.Debug("put appended",
		"writer", m.local,
		"seq", entries[0].Seq,
		"key", string(key),
	)
	return entries[0], nil
}

// Get returns the current value of key. Conflict markers are not visible
// through Get.
func (m *Map) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	rec, ok, err := m.Record(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.Value, true, nil
}

// Record returns the current record of key, including its provenance.
func (m *Map) Record(ctx context.Context, key []byte) (model.Record, bool, error) {
	if m.Reserved(key) {
		return model.Record{}, false, fmt.Errorf("get: %w", engine.NewReservedKeyError(key))
	}
	return m.read(ctx, key)
}

// Conflict returns the shadowed record kept for key, if any.
func (m *Map) Conflict(ctx context.Context, key []byte) (model.Record, bool, error) {
	return m.read(ctx, m.MarkerKey(key))
}

func (m *Map) read(ctx context.Context, key []byte) (model.Record, bool, error) {
	raw, ok, err := m.index.Get(ctx, key)
	if err != nil {
		return model.Record{}, false, engine.NewStorageError("read index", err)
	}
	if !ok {
		return model.Record{}, false, nil
	}
	rec, err := model.DecodeRecord(raw)
	if err != nil {
		return model.Record{}, false, fmt.Errorf("read %q: %w", key, err)
	}
	return rec, true, nil
}

// Item is one visible key with its current record.
type Item struct {
	Key    []byte       `json:"key"`
	Record model.Record `json:"record"`
}

// Items lists every visible key, ordered by key. Conflict markers are
// skipped.
func (m *Map) Items(ctx context.Context) ([]Item, error) {
	pairs, err := m.index.Scan(ctx, nil)
	if err != nil {
		return nil, engine.NewStorageError("scan index", err)
	}

	items := make([]Item, 0, len(pairs))
	for _, kv := range pairs {
		if m.Reserved(kv.Key) {
			continue
		}
		rec, err := model.DecodeRecord(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", kv.Key, err)
		}
		items = append(items, Item{Key: kv.Key, Record: rec})
	}
	return items, nil
}

// Conflict pairs a key's current record with the record it shadowed.
type Conflict struct {
	Key      []byte       `json:"key"`
	Current  model.Record `json:"current"`
	Shadowed model.Record `json:"shadowed"`
}

// Conflicts lists every key that has a conflict marker, ordered by key.
func (m *Map) Conflicts(ctx context.Context) ([]Conflict, error) {
	prefix := m.markerPrefix()
	pairs, err := m.index.Scan(ctx, prefix)
	if err != nil {
		return nil, engine.NewStorageError("scan conflicts", err)
	}

	conflicts := make([]Conflict, 0, len(pairs))
	for _, kv := range pairs {
		key := kv.Key[len(prefix):]
		shadowed, err := model.DecodeRecord(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("conflict %q: %w", key, err)
		}
		current, _, err := m.read(ctx, key)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, Conflict{Key: key, Current: current, Shadowed: shadowed})
	}
	return conflicts, nil
}

// Update applies every batch the map has not seen yet. A concurrent Update
// on the same map fails with a Reentrancy error.
func (m *Map) Update(ctx context.Context) (engine.UpdateResult, error) {
	if !m.mu.TryLock() {
		return engine.UpdateResult{}, engine.NewReentrancyError("kv view " + m.index.View())
	}
	defer m.mu.Unlock()

	return m.eng.Update(ctx, m)
}
