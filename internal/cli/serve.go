package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/bitwebs/bitstream/internal/api"
	"github.com/bitwebs/bitstream/internal/kv"
	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/pipeline"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and keep views up to date",
		Long: `Start the HTTP API and the update loop. After every burst of appends the
key/value view is updated and the configured output log is advanced.

Example:
  bitstream serve --db ./bitstream.db --listen 127.0.0.1:7070
  bitstream serve --config ./bitstream.cue --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (defaults to config listen)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	listen := firstNonEmpty(opts.Listen, cfg.Listen)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	m := s.kvMap(model.WriterID(cfg.Local))
	runner, err := pipeline.NewBuiltin(cfg.Reducer, s.eng, s.store.OutputLog(cfg.Output))
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    listen,
		Handler: api.NewRouter(api.NewAPI(s.eng, m)),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
		close(serveErr)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", listen)

	loopErr := s.eng.Run(ctx, refreshViews(m, cfg.View, runner, cfg.Output))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown", "error", err)
	}

	if err := <-serveErr; err != nil {
		return WrapExitError(ExitCommandError, "http server failed", err)
	}
	if loopErr != nil && !errors.Is(loopErr, context.Canceled) && !errors.Is(loopErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", loopErr)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// refreshViews returns the loop body run after each burst of appends. Both
// the key/value view and the output pipeline are advanced on every call, and
// a failure in one does not stop the other.
func refreshViews(m *kv.Map, view string, runner pipeline.Runner, output string) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		if _, err := m.Update(ctx); err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", view, err))
		}
		if _, err := runner.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rebase %s: %w", output, err))
		}
		return errors.Join(errs...)
	}
}
