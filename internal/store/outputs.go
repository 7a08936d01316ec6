package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bitwebs/bitstream/internal/model"
)

// OutputLog is a named, positionally addressed log of reducer outputs.
// Position 0 holds the first output in apply order.
type OutputLog struct {
	s    *Store
	name string
}

// OutputLog returns a handle on the named output log.
func (s *Store) OutputLog(name string) *OutputLog {
	return &OutputLog{s: s, name: name}
}

// OutputLogs returns the names of all non-empty output logs.
func (s *Store) OutputLogs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT log FROM outputs
		ORDER BY log COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query output logs: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan output log: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output logs: %w", err)
	}
	return names, nil
}

// Name returns the log name.
func (o *OutputLog) Name() string {
	return o.name
}

// Len returns the number of outputs stored.
func (o *OutputLog) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := o.s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outputs WHERE log = ?
	`, o.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("output length %s: %w", o.name, err)
	}
	return n, nil
}

// Read returns the outputs at positions >= from, ordered by position.
func (o *OutputLog) Read(ctx context.Context, from int64) ([]model.Output, error) {
	rows, err := o.s.db.QueryContext(ctx, `
		SELECT writer, seq, value
		FROM outputs
		WHERE log = ? AND pos >= ?
		ORDER BY pos ASC
	`, o.name, from)
	if err != nil {
		return nil, fmt.Errorf("query outputs: %w", err)
	}
	defer rows.Close()

	outputs := []model.Output{}
	for rows.Next() {
		var out model.Output
		var writer string
		if err := rows.Scan(&writer, &out.Ref.Seq, &out.Value); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		out.Ref.Writer = model.WriterID(writer)
		if out.Value == nil {
			out.Value = []byte{}
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outputs: %w", err)
	}
	return outputs, nil
}

// Rewrite truncates the log at position from and appends outputs after it,
// atomically. from must not exceed the current length.
func (o *OutputLog) Rewrite(ctx context.Context, from int64, outputs []model.Output) error {
	err := o.s.withTx(ctx, func(tx *sql.Tx) error {
		var n int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM outputs WHERE log = ?
		`, o.name).Scan(&n); err != nil {
			return fmt.Errorf("output length: %w", err)
		}
		if from < 0 || from > n {
			return fmt.Errorf("position %d out of range [0, %d]", from, n)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM outputs WHERE log = ? AND pos >= ?
		`, o.name, from); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO outputs (log, pos, writer, seq, value)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, out := range outputs {
			pos := from + int64(i)
			if _, err := stmt.ExecContext(ctx, o.name, pos, string(out.Ref.Writer), out.Ref.Seq, nonNilBytes(out.Value)); err != nil {
				return fmt.Errorf("insert output %d: %w", pos, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", o.name, err)
	}
	return nil
}
