package kv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/engine"
	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/store"
)

// Applied returns the entries applied to the index, in apply order.
func (m *Map) Applied(ctx context.Context) ([]model.EntryRef, error) {
	return m.index.Applied(ctx)
}

// Apply applies one batch to the index in a single transaction.
//
// A payload that does not decode aborts the batch with a DecodeError and
// nothing is written. Operations other than put, and puts into the reserved
// namespace, are logged and skipped.
func (m *Map) Apply(ctx context.Context, batch engine.Batch) error {
	b, err := m.index.Begin(ctx)
	if err != nil {
		return engine.NewStorageError("begin batch", err)
	}
	defer b.Discard()

	if batch.Reset {
		if err := b.Reset(ctx); err != nil {
			return engine.NewStorageError("reset view", err)
		}
	}

	for _, entry := range batch.Entries {
		op, err := model.DecodeOp(entry.Payload)
		if err != nil {
			return engine.NewDecodeError(entry.Ref(), err)
		}

		if op.Type != model.OpPut {
			skip := engine.NewUnsupportedOperationError(entry.Ref(), string(op.Type))
			slog.Warn("operation skipped", "error", skip)
			continue
		}
		if m.Reserved(op.Key) {
			skip := engine.NewUnsupportedOperationError(entry.Ref(), "put into reserved namespace")
			slog.Warn("operation skipped", "error", skip, "key", string(op.Key))
			continue
		}

		if err := m.applyPut(ctx, b, batch.Clock, entry, op); err != nil {
			return err
		}
	}

	if err := b.Record(ctx, batch.Refs()...); err != nil {
		return engine.NewStorageError("record applied", err)
	}
	if err := b.Flush(); err != nil {
		return engine.NewStorageError("flush batch", err)
	}

	slog.Debug("batch applied",
		"writer", batch.Writer,
		"entries", len(batch.Entries),
		"reset", batch.Reset,
		"clock", batch.Clock.String(),
	)
	return nil
}

func (m *Map) applyPut(ctx context.Context, b *store.IndexBatch, local clock.Clock, entry model.Entry, op model.Op) error {
	prior, existed, err := b.Get(ctx, op.Key)
	if err != nil {
		return engine.NewStorageError("read prior value", err)
	}

	rec, err := model.EncodeRecord(model.Record{
		Value:      op.Value,
		Provenance: model.NewProvenance(entry.Writer, entry.Seq),
	})
	if err != nil {
		return fmt.Errorf("apply %s: %w", entry.Ref(), err)
	}
	if err := b.Put(ctx, op.Key, rec); err != nil {
		return engine.NewStorageError("write value", err)
	}
	if !existed {
		return nil
	}

	marker := m.MarkerKey(op.Key)
	switch priorKnowledge(local, prior) {
	case clock.Known:
		if err := b.Del(ctx, marker); err != nil {
			return engine.NewStorageError("clear conflict", err)
		}
	default:
		if err := b.Put(ctx, marker, prior); err != nil {
			return engine.NewStorageError("write conflict", err)
		}
		slog.Debug("conflict recorded",
			"key", string(op.Key),
			"entry", entry.Ref().String(),
		)
	}
	return nil
}

// priorKnowledge classifies the prior write of a key against the batch
// clock. A record whose provenance cannot be decoded counts as Unknown.
func priorKnowledge(local clock.Clock, prior []byte) clock.Knowledge {
	rec, err := model.DecodeRecord(prior)
	if err != nil {
		slog.Warn("prior record undecodable, treating as concurrent", "error", err)
		return clock.Unknown
	}
	writer, err := rec.Provenance.Writer()
	if err != nil {
		slog.Warn("prior provenance undecodable, treating as concurrent", "error", err)
		return clock.Unknown
	}
	return local.Lookup(string(writer), rec.Provenance.Seq)
}
