package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modserver"
	"github.com/GoCodeAlone/modserver/httpserver"
	"github.com/GoCodeAlone/modserver/watcher"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the app over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := LoadOptions(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, logger)
		},
	}
}

// serve runs the server until ctx is done. The first load must succeed.
func serve(ctx context.Context, opts ServerOptions, logger *slog.Logger, extra ...modserver.Option) error {
	a, err := newApp(ctx, opts, logger, extra...)
	if err != nil {
		return err
	}
	defer a.Close()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	snap, err := a.runtime.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	logger.Info("App loaded",
		"dir", opts.Dir,
		"env", opts.Env,
		"modules", len(snap.Modules),
		"resources", len(snap.Resources),
	)

	if opts.Refresh != "" {
		refresher, err := modserver.NewRefresher(a.runtime, opts.Refresh)
		if err != nil {
			return err
		}
		if err := refresher.Start(ctx); err != nil {
			return err
		}
		defer refresher.Stop()
	}

	if opts.Watch {
		w := watcher.New(opts.Dir, a.runtime, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	srv := httpserver.New(a.runtime, opts.HTTP, httpserver.WithGatherer(a.registry))
	return srv.ListenAndServe(ctx)
}
