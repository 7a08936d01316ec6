package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/store"
)

// WriterLog is the storage a single writer appends to.
// Implemented by *store.WriterLog.
type WriterLog interface {
	ID() model.WriterID
	Len(ctx context.Context) (int64, error)
	Get(ctx context.Context, seq int64) (model.Entry, error)
	Range(ctx context.Context, from, to int64) ([]model.Entry, error)
	Append(ctx context.Context, expectLen int64, c clock.Clock, payloads ...[]byte) ([]model.Entry, error)
}

// Engine linearizes a set of writer logs.
//
// The canonical order is never stored: it is recomputed from the current log
// lengths on every Snapshot, so any two engines holding the same logs agree
// on it without communicating.
//
// Thread-safety model:
//   - Append, Snapshot, Latest: safe from any goroutine
//   - Update: serialized, one batch in flight at a time
//   - Run: must be called from exactly one goroutine
//
// Append events are only queued once Run has started; before that there is
// nobody to drain them and Run's initial call covers everything appended.
type Engine struct {
	mu       sync.RWMutex
	logs     map[model.WriterID]WriterLog
	queue    *appendQueue
	attached atomic.Bool
	update   sync.Mutex
}

// New creates an Engine over the given logs. Writer ids must be unique and
// pass model.WriterID.Validate.
func New(logs ...WriterLog) (*Engine, error) {
	e := &Engine{
		logs:  make(map[model.WriterID]WriterLog, len(logs)),
		queue: newAppendQueue(),
	}

	seen := mapset.NewThreadUnsafeSet[model.WriterID]()
	for _, log := range logs {
		if err := log.ID().Validate(); err != nil {
			return nil, fmt.Errorf("new engine: %w", err)
		}
		if !seen.Add(log.ID()) {
			return nil, fmt.Errorf("new engine: duplicate writer %q", log.ID())
		}
		e.logs[log.ID()] = log
	}
	return e, nil
}

// AddWriter adds a writer log to a running engine. The next snapshot
// includes it.
func (e *Engine) AddWriter(log WriterLog) error {
	if err := log.ID().Validate(); err != nil {
		return fmt.Errorf("add writer: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.logs[log.ID()]; ok {
		return fmt.Errorf("add writer: duplicate writer %q", log.ID())
	}
	e.logs[log.ID()] = log
	slog.Debug("writer added", "writer", log.ID())
	return nil
}

// Writers returns the engine's writer ids in ascending order.
func (e *Engine) Writers() []model.WriterID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]model.WriterID, 0, len(e.logs))
	for id := range e.logs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Writer returns the log of one writer.
func (e *Engine) Writer(id model.WriterID) (WriterLog, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	log, ok := e.logs[id]
	if !ok {
		return nil, NewUnknownWriterError(id)
	}
	return log, nil
}

func (e *Engine) writerLogs() []WriterLog {
	e.mu.RLock()
	defer e.mu.RUnlock()

	logs := make([]WriterLog, 0, len(e.logs))
	for _, log := range e.logs {
		logs = append(logs, log)
	}
	slices.SortFunc(logs, func(a, b WriterLog) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return logs
}

// Snapshot captures the current log lengths and derives the canonical order
// from them.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	logs := e.writerLogs()
	lengths := make(map[model.WriterID]int64, len(logs))
	for _, log := range logs {
		n, err := log.Len(ctx)
		if err != nil {
			return Snapshot{}, NewStorageError("read log length", err)
		}
		lengths[log.ID()] = n
	}
	return NewSnapshot(lengths), nil
}

// Entry reads one entry.
func (e *Engine) Entry(ctx context.Context, ref model.EntryRef) (model.Entry, error) {
	log, err := e.Writer(ref.Writer)
	if err != nil {
		return model.Entry{}, err
	}
	entry, err := log.Get(ctx, ref.Seq)
	if err != nil {
		return model.Entry{}, NewStorageError("read entry "+ref.String(), err)
	}
	return entry, nil
}

// Entries reads the entries behind refs, preserving their order. Runs of
// consecutive positions of one writer are read with a single range query.
func (e *Engine) Entries(ctx context.Context, refs []model.EntryRef) ([]model.Entry, error) {
	out := make([]model.Entry, 0, len(refs))
	for i := 0; i < len(refs); {
		j := i + 1
		var step int64
		if j < len(refs) && refs[j].Writer == refs[i].Writer {
			if d := refs[j].Seq - refs[i].Seq; d == 1 || d == -1 {
				step = d
			}
		}
		if step != 0 {
			for j < len(refs) && refs[j].Writer == refs[i].Writer && refs[j].Seq-refs[j-1].Seq == step {
				j++
			}
		}

		run := refs[i:j]
		lo, hi := run[0].Seq, run[len(run)-1].Seq
		if lo > hi {
			lo, hi = hi, lo
		}

		log, err := e.Writer(run[0].Writer)
		if err != nil {
			return nil, err
		}
		entries, err := log.Range(ctx, lo, hi+1)
		if err != nil {
			return nil, NewStorageError("read entries", err)
		}
		if int64(len(entries)) != hi-lo+1 {
			return nil, NewStorageError("read entries",
				fmt.Errorf("writer %s: got %d entries for range [%d, %d]", run[0].Writer, len(entries), lo, hi))
		}
		if step < 0 {
			slices.Reverse(entries)
		}
		out = append(out, entries...)
		i = j
	}
	return out, nil
}

// Append adds payloads to writer w as one batch sharing clock c.
//
// c must know exactly the writer's current head: Get(w) == len-1, or no
// entry for w when the log is empty. Any other clock is rejected with a
// StaleClock error. The check and the write are atomic in storage, so two
// producers racing on the same log cannot both succeed with the same clock.
func (e *Engine) Append(ctx context.Context, w model.WriterID, c clock.Clock, payloads ...[]byte) ([]model.Entry, error) {
	log, err := e.Writer(w)
	if err != nil {
		return nil, err
	}

	n, err := log.Len(ctx)
	if err != nil {
		return nil, NewStorageError("read log length", err)
	}
	if !clockMatchesHead(c, w, n) {
		return nil, NewStaleClockError(w, n, nil)
	}

	entries, err := log.Append(ctx, n, c, payloads...)
	if errors.Is(err, store.ErrLengthMismatch) {
		return nil, NewStaleClockError(w, n, err)
	}
	if err != nil {
		return nil, NewStorageError("append", err)
	}

	slog.Debug("entries appended",
		"writer", w,
		"from", n,
		"count", len(entries),
		"clock", c.String(),
	)

	if len(entries) > 0 && e.attached.Load() {
		e.queue.Enqueue(AppendEvent{Writer: w, From: n, Count: len(entries)})
	}
	return entries, nil
}

func clockMatchesHead(c clock.Clock, w model.WriterID, length int64) bool {
	seq, ok := c.Get(string(w))
	if length == 0 {
		return !ok
	}
	return ok && seq == length-1
}

// Latest returns everything the heads of the given logs causally know: each
// head entry's clock merged with the head position itself.
func Latest(ctx context.Context, logs ...WriterLog) (clock.Clock, error) {
	var c clock.Clock
	for _, log := range logs {
		n, err := log.Len(ctx)
		if err != nil {
			return clock.Clock{}, NewStorageError("read log length", err)
		}
		if n == 0 {
			continue
		}
		head, err := log.Get(ctx, n-1)
		if err != nil {
			return clock.Clock{}, NewStorageError("read head", err)
		}
		c = c.Merge(head.Clock).With(string(log.ID()), n-1)
	}
	return c, nil
}

// Latest returns the head knowledge of every writer in the engine.
func (e *Engine) Latest(ctx context.Context) (clock.Clock, error) {
	return Latest(ctx, e.writerLogs()...)
}

// Head returns the clock that knows only writer w's own head. Appending
// with it records the entry as concurrent with everything else.
func (e *Engine) Head(ctx context.Context, w model.WriterID) (clock.Clock, error) {
	log, err := e.Writer(w)
	if err != nil {
		return clock.Clock{}, err
	}
	n, err := log.Len(ctx)
	if err != nil {
		return clock.Clock{}, NewStorageError("read log length", err)
	}
	if n == 0 {
		return clock.Clock{}, nil
	}
	return clock.New(map[string]int64{string(w): n - 1}), nil
}

// Notify wakes the Run loop without an append, e.g. after logs changed
// underneath the engine.
func (e *Engine) Notify() {
	if e.attached.Load() {
		e.queue.Enqueue(AppendEvent{})
	}
}

// Run drives fn once on start and then once per burst of appends until the
// context is cancelled or Stop is called. Notifications that arrive while fn
// runs are coalesced into a single further call.
//
// ERROR HANDLING: a failing fn is logged and the loop continues; the next
// append retries from the view's persisted state.
func (e *Engine) Run(ctx context.Context, fn func(context.Context) error) error {
	slog.Info("engine loop starting")
	e.attached.Store(true)

	if err := fn(ctx); err != nil {
		slog.Error("update failed", "error", err)
	}

	for {
		drained, appended := 0, 0
		for {
			ev, ok := e.queue.TryDequeue()
			if !ok {
				break
			}
			drained++
			if ev.Count == 0 {
				continue
			}
			appended += ev.Count
			slog.Debug("append event",
				"writer", ev.Writer,
				"from", ev.From,
				"count", ev.Count,
			)
		}
		if drained > 0 {
			slog.Debug("processing appends", "events", drained, "entries", appended)
			if err := fn(ctx); err != nil {
				slog.Error("update failed", "events", drained, "entries", appended, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine loop stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop ends the Run loop.
func (e *Engine) Stop() {
	e.queue.Close()
}
