package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bitwebs/bitstream/internal/model"
)

// KV is one key/value pair of an index.
type KV struct {
	Key   []byte
	Value []byte
}

// Index is an ordered key/value table owned by one view, together with the
// list of entries the view has applied so far.
type Index struct {
	s    *Store
	view string
}

// Index returns a handle on the view's index.
func (s *Store) Index(view string) *Index {
	return &Index{s: s, view: view}
}

// View returns the owning view name.
func (ix *Index) View() string {
	return ix.view
}

// Get returns the value stored under key.
func (ix *Index) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return indexGet(ctx, ix.s.db, ix.view, key)
}

// Scan returns all pairs whose key starts with prefix, ordered by key bytes.
func (ix *Index) Scan(ctx context.Context, prefix []byte) ([]KV, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if end := prefixEnd(prefix); end != nil {
		rows, err = ix.s.db.QueryContext(ctx, `
			SELECT key, value FROM index_entries
			WHERE view = ? AND key >= ? AND key < ?
			ORDER BY key ASC
		`, ix.view, nonNilBytes(prefix), end)
	} else {
		rows, err = ix.s.db.QueryContext(ctx, `
			SELECT key, value FROM index_entries
			WHERE view = ? AND key >= ?
			ORDER BY key ASC
		`, ix.view, nonNilBytes(prefix))
	}
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}
	defer rows.Close()

	pairs := []KV{}
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		pairs = append(pairs, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index: %w", err)
	}
	return pairs, nil
}

// Applied returns the refs the view has applied, in apply order.
func (ix *Index) Applied(ctx context.Context) ([]model.EntryRef, error) {
	rows, err := ix.s.db.QueryContext(ctx, `
		SELECT writer, seq FROM index_applied
		WHERE view = ?
		ORDER BY pos ASC
	`, ix.view)
	if err != nil {
		return nil, fmt.Errorf("query applied: %w", err)
	}
	defer rows.Close()

	refs := []model.EntryRef{}
	for rows.Next() {
		var writer string
		var ref model.EntryRef
		if err := rows.Scan(&writer, &ref.Seq); err != nil {
			return nil, fmt.Errorf("scan applied: %w", err)
		}
		ref.Writer = model.WriterID(writer)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied: %w", err)
	}
	return refs, nil
}

// Begin opens a write batch. Reads through the batch observe its own
// uncommitted writes. The caller must Flush or Discard it.
func (ix *Index) Begin(ctx context.Context) (*IndexBatch, error) {
	tx, err := ix.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &IndexBatch{tx: tx, view: ix.view}, nil
}

// IndexBatch is an atomic group of index writes.
type IndexBatch struct {
	tx   *sql.Tx
	view string
	done bool
}

// Get reads key inside the batch.
func (b *IndexBatch) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return indexGet(ctx, b.tx, b.view, key)
}

// Put stores value under key.
func (b *IndexBatch) Put(ctx context.Context, key, value []byte) error {
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO index_entries (view, key, value) VALUES (?, ?, ?)
		ON CONFLICT(view, key) DO UPDATE SET value = excluded.value
	`, b.view, nonNilBytes(key), nonNilBytes(value))
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// Del removes key. Deleting a missing key is a no-op.
func (b *IndexBatch) Del(ctx context.Context, key []byte) error {
	_, err := b.tx.ExecContext(ctx, `
		DELETE FROM index_entries WHERE view = ? AND key = ?
	`, b.view, nonNilBytes(key))
	if err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Reset clears every key and the applied list of the view.
func (b *IndexBatch) Reset(ctx context.Context) error {
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM index_entries WHERE view = ?`, b.view); err != nil {
		return fmt.Errorf("reset entries: %w", err)
	}
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM index_applied WHERE view = ?`, b.view); err != nil {
		return fmt.Errorf("reset applied: %w", err)
	}
	return nil
}

// Record appends refs to the view's applied list.
func (b *IndexBatch) Record(ctx context.Context, refs ...model.EntryRef) error {
	var next int64
	if err := b.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(pos) + 1, 0) FROM index_applied WHERE view = ?
	`, b.view).Scan(&next); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	for i, ref := range refs {
		if _, err := b.tx.ExecContext(ctx, `
			INSERT INTO index_applied (view, pos, writer, seq) VALUES (?, ?, ?, ?)
		`, b.view, next+int64(i), string(ref.Writer), ref.Seq); err != nil {
			return fmt.Errorf("record %s: %w", ref, err)
		}
	}
	return nil
}

// Flush commits the batch.
func (b *IndexBatch) Flush() error {
	if b.done {
		return errors.New("flush: batch already closed")
	}
	b.done = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Discard rolls the batch back. Discarding a closed batch is a no-op.
func (b *IndexBatch) Discard() error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.tx.Rollback(); err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	return nil
}

func indexGet(ctx context.Context, q queryer, view string, key []byte) ([]byte, bool, error) {
	var value []byte
	err := q.QueryRowContext(ctx, `
		SELECT value FROM index_entries WHERE view = ? AND key = ?
	`, view, nonNilBytes(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
