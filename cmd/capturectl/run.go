package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	capturegraph "github.com/e7canasta/orion-care-sensor/modules/capture-graph"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/catalog"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/logging"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/settings"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// graphFlags are the build options every graph command accepts. Only flags
// set on the command line override the configuration file.
type graphFlags struct {
	device    string
	connector string
	width     int
	height    int
	fps       float64
	audio     string
	output    string
	profile   string
}

func (f *graphFlags) register(cmd *cobra.Command, variant string) {
	fs := cmd.Flags()
	fs.StringVarP(&f.device, "device", "d", "", "Video device path (substring match, e.g. video0)")
	fs.StringVar(&f.connector, "connector", "", "Physical connector to route: Composite, SVideo, SerialDigital, ...")
	fs.IntVar(&f.width, "width", 0, "Capture width in pixels (with --height)")
	fs.IntVar(&f.height, "height", 0, "Capture height in pixels (with --width)")
	fs.Float64Var(&f.fps, "fps", 0, "Capture frame rate")
	if variant == "record" {
		fs.StringVar(&f.audio, "audio", "", "Microphone display name (substring match)")
		fs.StringVarP(&f.output, "output", "o", "", "Output file")
		fs.StringVar(&f.profile, "profile", "", "Encoding profile YAML")
	}
}

// apply layers changed flags over cfg, selects the variant and validates
func (f *graphFlags) apply(cmd *cobra.Command, cfg *config.Config, variant string) error {
	fs := cmd.Flags()
	if fs.Changed("device") {
		cfg.Video.DevicePath = f.device
	}
	if fs.Changed("connector") {
		cfg.Video.Connector = f.connector
	}
	if fs.Changed("width") {
		cfg.Video.Width = f.width
	}
	if fs.Changed("height") {
		cfg.Video.Height = f.height
	}
	if fs.Changed("fps") {
		cfg.Video.FPS = f.fps
	}
	if fs.Lookup("audio") != nil && fs.Changed("audio") {
		cfg.Audio.DeviceName = f.audio
	}
	if fs.Lookup("output") != nil && fs.Changed("output") {
		cfg.Record.OutputPath = f.output
	}
	if fs.Lookup("profile") != nil && fs.Changed("profile") {
		cfg.Record.ProfilePath = f.profile
	}
	if variant != "" {
		cfg.Variant = variant
	}
	return config.Validate(cfg)
}

// optionsFromConfig converts a validated configuration into build options
func optionsFromConfig(cfg *config.Config) capturegraph.Options {
	opts := capturegraph.Options{
		VideoDevicePath: cfg.Video.DevicePath,
		Connector:       cfg.Video.ConnectorType(),
		Width:           cfg.Video.Width,
		Height:          cfg.Video.Height,
		FrameRate:       cfg.Video.FPS,
	}
	if cfg.Variant == capturegraph.VariantRecord.String() {
		opts.AudioDeviceName = cfg.Audio.DeviceName
		opts.OutputPath = cfg.Record.OutputPath
		opts.ProfilePath = cfg.Record.ProfilePath
	}
	return opts
}

// preferredConnector looks up the stored connector of the device the path
// resolves to. Unspecified when there is no settings file or record.
func (a *app) preferredConnector(ctx context.Context, lister media.DeviceLister, cfg *config.Config) media.ConnectorType {
	if cfg.SettingsFile == "" {
		return media.ConnectorUnspecified
	}
	if _, err := os.Stat(cfg.SettingsFile); err != nil {
		return media.ConnectorUnspecified
	}
	store, err := settings.Open(cfg.SettingsFile, logging.WithComponent("settings"))
	if err != nil {
		a.log.Warn().Err(err).Msg("capturectl: settings unreadable, not routing")
		return media.ConnectorUnspecified
	}
	dev, err := catalog.New(lister, a.log).ResolveByPath(ctx, media.CategoryVideoInput, cfg.Video.DevicePath)
	if err != nil {
		return media.ConnectorUnspecified
	}
	rec, ok := store.Get(dev.Path)
	if !ok {
		return media.ConnectorUnspecified
	}
	a.log.Debug().
		Str("device_path", dev.Path).
		Str("connector", rec.Connector).
		Msg("capturectl: connector from device settings")
	return rec.ConnectorType()
}

// openGraph builds the configured variant
func (a *app) openGraph(ctx context.Context, rt media.Runtime, cfg *config.Config, sink capturegraph.Sink) (*capturegraph.Graph, error) {
	variant, err := capturegraph.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	opts := optionsFromConfig(cfg)
	if opts.Connector == media.ConnectorUnspecified {
		opts.Connector = a.preferredConnector(ctx, rt, cfg)
	}

	log := logging.WithComponent("capture-graph")
	return capturegraph.Build(ctx, capturegraph.Deps{Runtime: rt, Sink: sink, Logger: &log}, variant, opts)
}

// logEvent writes one graph event to the log
func logEvent(log zerolog.Logger, ev notify.Event) {
	switch ev.Kind {
	case notify.KindWarning:
		if ev.Warning != nil {
			log.Warn().
				Err(ev.Warning.Err).
				Str("warning", string(ev.Warning.Kind)).
				Msg("capturectl: " + ev.Warning.Message)
		}
	case notify.KindState:
		log.Info().Str("state", ev.State).Msg("capturectl: graph state")
	case notify.KindPictureReady:
		if ev.Picture != nil {
			log.Debug().Str("picture_id", ev.Picture.ID.String()).Msg("capturectl: picture ready")
		}
	}
}

// printSummary prints the assembled graph
func printSummary(w io.Writer, g *capturegraph.Graph) {
	fmt.Fprintf(w, "\nGraph %s (%s)\n", g.ID(), g.Variant())
	fmt.Fprintf(w, "  Device:     %s\n", g.Device())
	if audio, ok := g.AudioDevice(); ok {
		fmt.Fprintf(w, "  Microphone: %s\n", audio)
	}
	if p := g.Profile(); p != nil {
		fmt.Fprintf(w, "  Profile:    %s\n", p.Name)
	}
	if out := g.Options().OutputPath; out != "" && g.Variant() == capturegraph.VariantRecord {
		fmt.Fprintf(w, "  Output:     %s\n", out)
	}
	if f, ok := g.SnapshotFormat(); ok {
		fmt.Fprintf(w, "  Snapshot:   %s\n", f)
	}
	fmt.Fprintf(w, "  Topology:\n")
	for _, l := range g.Topology() {
		fmt.Fprintf(w, "    %s\n", l)
	}
	fmt.Fprintln(w)
}

// newRunCmd returns the preview or record command: build, start, run until
// interrupted
func newRunCmd(a *app, variant, short string) *cobra.Command {
	flags := &graphFlags{}
	cmd := &cobra.Command{
		Use:   variant,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a.cfg, variant); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runUntilDone(ctx, cmd.OutOrStdout())
		},
	}
	flags.register(cmd, variant)
	return cmd
}

func (a *app) runUntilDone(ctx context.Context, out io.Writer) error {
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
	printSummary(out, g)

	if err := g.Start(); err != nil {
		_ = g.Close()
		return errors.Wrap(err, "start graph")
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("capturectl: interrupted, stopping graph")
			return g.Close()
		case ev := <-events:
			logEvent(a.log, ev)
		}
	}
}
