package cli

import (
	"context"
	"log/slog"

	"github.com/bitwebs/bitstream/internal/engine"
	"github.com/bitwebs/bitstream/internal/kv"
	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/store"
)

// session is an open database with an engine over every registered writer.
type session struct {
	opts  *RootOptions
	store *store.Store
	eng   *engine.Engine
}

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	st, err := store.Open(opts.Config.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	writerLogs, err := st.WriterLogs(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to list writers", err)
	}
	logs := make([]engine.WriterLog, len(writerLogs))
	for i, l := range writerLogs {
		logs[i] = l
	}
	eng, err := engine.New(logs...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	slog.Debug("session opened", "db", opts.Config.Database, "writers", len(logs))
	return &session{opts: opts, store: st, eng: eng}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// kvMap builds the configured key/value view. local may be empty for
// read-only use.
func (s *session) kvMap(local model.WriterID) *kv.Map {
	cfg := s.opts.Config
	opts := []kv.Option{kv.WithSentinel(cfg.Sentinel)}
	if local != "" {
		opts = append(opts, kv.WithLocal(local))
	}
	return kv.New(s.eng, s.store.Index(cfg.View), opts...)
}

// writerOrLocal picks the --writer flag value or the configured local
// writer.
func (s *session) writerOrLocal(flag string) (model.WriterID, error) {
	w := flag
	if w == "" {
		w = s.opts.Config.Local
	}
	if w == "" {
		return "", NewExitError(ExitCommandError, "no writer: pass --writer or set local in the config")
	}
	return model.WriterID(w), nil
}
