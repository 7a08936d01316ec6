package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/model"
)

// ErrNotFound is returned when a requested entry does not exist.
var ErrNotFound = errors.New("not found")

// ErrLengthMismatch is returned by Append when the log no longer has the
// length the caller observed.
var ErrLengthMismatch = errors.New("log length mismatch")

// WriterLog is one writer's append-only log.
// Entries are addressed by a dense 0-based seq.
type WriterLog struct {
	s  *Store
	id model.WriterID
}

// AddWriter registers a writer. Registering an existing writer is a no-op.
func (s *Store) AddWriter(ctx context.Context, id model.WriterID) (*WriterLog, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("add writer: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO writers (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("add writer: %w", err)
	}
	return s.WriterLog(id), nil
}

// WriterLog returns a handle on the writer's log. The writer is registered
// lazily on first append.
func (s *Store) WriterLog(id model.WriterID) *WriterLog {
	return &WriterLog{s: s, id: id}
}

// Writers returns every registered writer ordered by id bytes.
func (s *Store) Writers(ctx context.Context) ([]model.WriterID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM writers
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query writers: %w", err)
	}
	defer rows.Close()

	writers := []model.WriterID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan writer: %w", err)
		}
		writers = append(writers, model.WriterID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate writers: %w", err)
	}
	return writers, nil
}

// WriterLogs returns a log handle for every registered writer.
func (s *Store) WriterLogs(ctx context.Context) ([]*WriterLog, error) {
	ids, err := s.Writers(ctx)
	if err != nil {
		return nil, err
	}
	logs := make([]*WriterLog, len(ids))
	for i, id := range ids {
		logs[i] = s.WriterLog(id)
	}
	return logs, nil
}

// ID returns the writer owning this log.
func (l *WriterLog) ID() model.WriterID {
	return l.id
}

// Len returns the number of entries in the log.
func (l *WriterLog) Len(ctx context.Context) (int64, error) {
	return logLen(ctx, l.s.db, l.id)
}

// Get returns the entry at seq. Returns ErrNotFound when seq is out of range.
func (l *WriterLog) Get(ctx context.Context, seq int64) (model.Entry, error) {
	row := l.s.db.QueryRowContext(ctx, `
		SELECT id, seq, payload, clock
		FROM entries
		WHERE writer = ? AND seq = ?
	`, string(l.id), seq)

	entry, err := l.scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entry{}, fmt.Errorf("get %s:%d: %w", l.id, seq, ErrNotFound)
	}
	if err != nil {
		return model.Entry{}, fmt.Errorf("get %s:%d: %w", l.id, seq, err)
	}
	return entry, nil
}

// Range returns entries with from <= seq < to, ordered by seq.
func (l *WriterLog) Range(ctx context.Context, from, to int64) ([]model.Entry, error) {
	rows, err := l.s.db.QueryContext(ctx, `
		SELECT id, seq, payload, clock
		FROM entries
		WHERE writer = ? AND seq >= ? AND seq < ?
		ORDER BY seq ASC
	`, string(l.id), from, to)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		entry, err := l.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Head returns the last entry, or false when the log is empty.
func (l *WriterLog) Head(ctx context.Context) (model.Entry, bool, error) {
	n, err := l.Len(ctx)
	if err != nil {
		return model.Entry{}, false, err
	}
	if n == 0 {
		return model.Entry{}, false, nil
	}
	entry, err := l.Get(ctx, n-1)
	if err != nil {
		return model.Entry{}, false, err
	}
	return entry, true, nil
}

// Append adds payloads as consecutive entries sharing clock c.
//
// The append succeeds only if the log still has expectLen entries; otherwise
// it returns an error wrapping ErrLengthMismatch and writes nothing. The
// length check and the inserts run in one transaction.
func (l *WriterLog) Append(ctx context.Context, expectLen int64, c clock.Clock, payloads ...[]byte) ([]model.Entry, error) {
	if len(payloads) == 0 {
		return []model.Entry{}, nil
	}
	if err := l.id.Validate(); err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}

	clockJSON, err := marshalClock(c)
	if err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}

	entries := make([]model.Entry, 0, len(payloads))
	err = l.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO writers (id) VALUES (?)
			ON CONFLICT(id) DO NOTHING
		`, string(l.id)); err != nil {
			return fmt.Errorf("register writer: %w", err)
		}

		have, err := logLen(ctx, tx, l.id)
		if err != nil {
			return err
		}
		if have != expectLen {
			return fmt.Errorf("%w: writer %s has %d entries, expected %d", ErrLengthMismatch, l.id, have, expectLen)
		}

		for i, payload := range payloads {
			seq := expectLen + int64(i)
			id, err := model.EntryID(l.id, seq, payload, c)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entries (writer, seq, id, payload, clock)
				VALUES (?, ?, ?, ?, ?)
			`, string(l.id), seq, id, nonNilBytes(payload), clockJSON); err != nil {
				return fmt.Errorf("insert entry %s:%d: %w", l.id, seq, err)
			}
			entries = append(entries, model.Entry{
				ID:      id,
				Writer:  l.id,
				Seq:     seq,
				Payload: payload,
				Clock:   c,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}
	return entries, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func logLen(ctx context.Context, q queryer, id model.WriterID) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries WHERE writer = ?
	`, string(id)).Scan(&n); err != nil {
		return 0, fmt.Errorf("log length %s: %w", id, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (l *WriterLog) scanEntry(row scanner) (model.Entry, error) {
	entry := model.Entry{Writer: l.id}
	var clockJSON string
	if err := row.Scan(&entry.ID, &entry.Seq, &entry.Payload, &clockJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Entry{}, err
		}
		return model.Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	c, err := unmarshalClock(clockJSON)
	if err != nil {
		return model.Entry{}, err
	}
	entry.Clock = c
	return entry, nil
}
