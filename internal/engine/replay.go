package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Replay and Determinism
//
// The canonical order is a pure function of the writer-log lengths. There is
// no stored order to repair after a crash: every Snapshot recomputes it, and
// every derived view is reconciled against it by diverge-and-redeliver.
//
//	logs ──Snapshot──▶ canonical order ──Reverse──▶ apply order
//	                                                   │
//	                        view.Applied() ──Diverge───┘
//	                                                   ▼
//	                                   prefix: deliver tail only
//	                                   diverged: Reset + deliver all
//
// Running Update twice with no intervening append delivers nothing the
// second time. A crash between two batches leaves the applied list a prefix
// of the apply order, so the next Update resumes where the last committed
// batch ended.

// VerifyOrder computes the canonical order twice from fresh snapshots and
// checks that both hash identically. It returns the hash.
func (e *Engine) VerifyOrder(ctx context.Context) (string, error) {
	first, err := e.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("verify order: %w", err)
	}
	second, err := e.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("verify order: %w", err)
	}

	h1, err := first.Hash()
	if err != nil {
		return "", fmt.Errorf("verify order: %w", err)
	}
	h2, err := second.Hash()
	if err != nil {
		return "", fmt.Errorf("verify order: %w", err)
	}
	if h1 != h2 {
		return "", fmt.Errorf("verify order: hashes differ (%s vs %s): logs changed during verification", h1, h2)
	}

	slog.Debug("order verified", "entries", first.Size(), "hash", h1)
	return h1, nil
}
