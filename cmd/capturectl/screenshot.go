package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	capturegraph "github.com/e7canasta/orion-care-sensor/modules/capture-graph"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/snapshot"
)

// retryInterval paces snapshot requests while the probe geometry is not
// negotiated yet
const retryInterval = 200 * time.Millisecond

func newScreenshotCmd(a *app) *cobra.Command {
	flags := &graphFlags{}
	var (
		outDir   string
		format   string
		quality  int
		count    int
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Save pictures from a capture device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a.cfg, "screenshot"); err != nil {
				return err
			}
			if cmd.Flags().Changed("out") {
				a.cfg.Snapshot.OutputDir = outDir
			}
			if cmd.Flags().Changed("format") {
				a.cfg.Snapshot.Format = format
			}
			if cmd.Flags().Changed("jpeg-quality") {
				a.cfg.Snapshot.JPEGQuality = quality
			}
			if count < 1 {
				return errors.Errorf("--count must be at least 1, got %d", count)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

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
			printSummary(cmd.OutOrStdout(), g)

			if err := g.Start(); err != nil {
				return errors.Wrap(err, "start graph")
			}

			for i := 0; i < count; i++ {
				if i > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(interval):
					}
				}
				pic, err := a.capture(ctx, g, events, timeout)
				if err != nil {
					return err
				}
				path, err := snapshot.Save(a.cfg.Snapshot.OutputDir, *pic, a.cfg.Snapshot.Format, a.cfg.Snapshot.JPEGQuality)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	flags.register(cmd, "screenshot")
	fs := cmd.Flags()
	fs.StringVar(&outDir, "out", ".", "Directory pictures are saved to")
	fs.StringVar(&format, "format", "png", "Picture format: png, jpeg, bmp")
	fs.IntVar(&quality, "jpeg-quality", 90, "JPEG quality (1-100, only for jpeg format)")
	fs.IntVar(&count, "count", 1, "Number of pictures to take")
	fs.DurationVar(&interval, "interval", time.Second, "Pause between pictures")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "Maximum wait for one picture")
	return cmd
}

// capture requests one snapshot and waits for its picture
//
// Algorithm:
//  1. RequestSnapshot, retrying every retryInterval while it is Skipped
//     (the pipeline is still prerolling)
//  2. Wait for the picture event; other events are logged
func (a *app) capture(ctx context.Context, g *capturegraph.Graph, events <-chan notify.Event, timeout time.Duration) (*snapshot.PictureReady, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		res, err := g.RequestSnapshot()
		if err != nil {
			return nil, err
		}
		if res == capturegraph.SnapshotArmed {
			break
		}
		a.log.Debug().Msg("capturectl: frame geometry not negotiated yet, retrying")
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "snapshot never armed")
		case <-time.After(retryInterval):
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting for picture")
		case ev := <-events:
			if ev.Kind == notify.KindPictureReady && ev.Picture != nil {
				return ev.Picture, nil
			}
			logEvent(a.log, ev)
		}
	}
}
