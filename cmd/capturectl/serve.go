package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/api"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/logging"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/settings"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	flags := &graphFlags{}
	var (
		listen  string
		variant string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run one graph and expose it over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.HTTP.Listen = listen
			}
			if err := flags.apply(cmd, a.cfg, variant); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	flags.register(cmd, "record")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides http.listen)")
	cmd.Flags().StringVar(&variant, "variant", "", "Graph variant: preview, record, screenshot (overrides config)")
	return cmd
}

// serve runs the graph, the HTTP API and the settings watcher until ctx is
// done or one of them fails
func (a *app) serve(ctx context.Context) error {
	rt, err := a.runtime()
	if err != nil {
		return err
	}

	bus := notify.NewBus()
	defer bus.Close()
	events := make(chan notify.Event, 32)
	if err := bus.Subscribe("capturectl", events); err != nil {
		return err
	}

	g, err := a.openGraph(ctx, rt, a.cfg, bus)
	if err != nil {
		return err
	}
	defer func() { _ = g.Close() }()
	if err := g.Start(); err != nil {
		return errors.Wrap(err, "start graph")
	}

	srv := api.New(api.Config{
		SnapshotRatePerMinute: a.cfg.HTTP.SnapshotRatePerMinute,
		JPEGQuality:           a.cfg.Snapshot.JPEGQuality,
	}, rt, g, bus, logging.WithComponent("api"))

	httpServer := &http.Server{
		Addr:              a.cfg.HTTP.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", a.cfg.HTTP.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", a.cfg.HTTP.Listen)
	}

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		a.log.Info().Str("listen", ln.Addr().String()).Str("graph_id", g.ID()).Msg("capturectl: serving")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	grp.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-events:
				logEvent(a.log, ev)
			}
		}
	})

	if a.cfg.SettingsFile != "" {
		store, err := settings.Open(a.cfg.SettingsFile, logging.WithComponent("settings"))
		if err != nil {
			a.log.Warn().Err(err).Msg("capturectl: settings unavailable, not watching")
		} else {
			grp.Go(func() error {
				return store.Watch(gctx, func() {
					if rec, ok := store.Get(g.Device().Path); ok {
						a.log.Info().
							Str("device_path", rec.Path).
							Str("connector", rec.Connector).
							Msg("capturectl: device settings changed, takes effect on next start")
					}
				})
			})
		}
	}

	return grp.Wait()
}
