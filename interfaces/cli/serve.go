package cli

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
)

type serveOptions struct {
	addr  string
	watch bool
}

func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the workflow HTTP API with the storage, lock, identity and
telemetry backends named in the configuration.

With --watch and a policies.file configured, edits to the policy file are
picked up without a restart. An invalid edit is logged and the previous
tables stay in force.

Examples:
  # In-memory development server with header identity
  mutaflow serve

  # Production configuration with live policy reload
  mutaflow serve -c /etc/mutaflow/config.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides server.address)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the policy file when it changes")

	return cmd
}

func (a *App) serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Address = opts.addr
	}

	rt, err := buildRuntime(ctx, cfg, opts.watch)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			logging.Error().Add(logging.Component("serve")).Add(logging.ErrorField(err)).Msg("shutdown")
		}
	}()

	handler, err := rt.server()
	if err != nil {
		return err
	}

	if rt.watcher != nil {
		go func() {
			if err := rt.watcher.Watch(ctx); err != nil {
				logging.Error().
					Add(logging.Component("policy")).
					Add(logging.ErrorField(err)).
					Msg("policy watcher stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Add(logging.Component("serve")).
			Add(logging.Str("addr", srv.Addr)).
			Add(logging.Str("storage", cfg.Storage.Backend)).
			Add(logging.Str("identity", cfg.Identity.Provider)).
			Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	logging.Info().Add(logging.Component("serve")).Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
