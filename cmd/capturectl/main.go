// Command capturectl builds and drives capture graphs from the command line
//
// Usage:
//
//	capturectl devices --category audio
//	capturectl preview --device /dev/video0 --connector SVideo --width 1280 --height 720
//	capturectl record --device video0 --audio "USB Audio" --output lecture.mp4 --profile lecture.yaml
//	capturectl screenshot --device video0 --out ./pictures --format jpeg
//	capturectl serve --config capture.yaml
//	capturectl settings sync
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/gstreamer"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/logging"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media/mediatest"
)

// Version information
const version = "v0.1.0"

// app carries state shared by every subcommand
type app struct {
	configPath string
	logLevel   string
	console    bool
	dryRun     bool

	cfg *config.Config
	log zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "capturectl",
		Short:         "Build and drive real-time capture graphs",
		Long:          "Preview, record and screenshot physical capture devices (capture cards, webcams, document cameras) through GStreamer.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file (optional)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.BoolVar(&a.console, "console", true, "Human-readable console logs instead of JSON")
	pf.BoolVar(&a.dryRun, "dry-run", false, "Use the in-memory media runtime instead of GStreamer")

	root.AddCommand(
		newDevicesCmd(a),
		newRunCmd(a, "preview", "Show the live picture of a capture device"),
		newRunCmd(a, "record", "Record a capture device (and optional microphone) to a file"),
		newScreenshotCmd(a),
		newServeCmd(a),
		newSettingsCmd(a),
	)
	return root
}

// setup loads configuration (validated later, once flags are layered on)
// and configures logging
func (a *app) setup() error {
	cfg, err := config.LoadUnvalidated(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	logging.Configure(logging.Config{
		Level:   cfg.Log.Level,
		Console: a.console || cfg.Log.Console,
	})
	a.log = logging.WithComponent("capturectl")
	return nil
}

// runtime returns the media runtime for this invocation
func (a *app) runtime() (media.Runtime, error) {
	if a.dryRun {
		a.log.Info().Msg("capturectl: dry run, using in-memory media runtime")
		return mediatest.New(), nil
	}
	rt, err := gstreamer.New(logging.WithComponent("gstreamer"))
	if err != nil {
		return nil, errors.Wrap(err, "media runtime unavailable (try --dry-run)")
	}
	return rt, nil
}
