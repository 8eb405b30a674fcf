package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/catalog"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/logging"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/settings"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

func newSettingsCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-device preferences (enabled, document camera, connector)",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "Settings file (overrides settings_file)")

	open := func(cmd *cobra.Command) (*settings.Store, error) {
		if cmd.Flags().Changed("file") {
			a.cfg.SettingsFile = file
		}
		if a.cfg.SettingsFile == "" {
			return nil, errors.New("no settings file configured")
		}
		return settings.Open(a.cfg.SettingsFile, logging.WithComponent("settings"))
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print stored device preferences",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := open(cmd)
				if err != nil {
					return err
				}
				return printRecords(cmd, store.Records())
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Add records for new video devices and drop unplugged ones",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := open(cmd)
				if err != nil {
					return err
				}
				rt, err := a.runtime()
				if err != nil {
					return err
				}
				devices, err := catalog.New(rt, a.log).Enumerate(cmd.Context(), media.CategoryVideoInput)
				if err != nil {
					return err
				}
				changed, err := store.Reconcile(devices)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintln(cmd.ErrOrStderr(), "settings already up to date")
				}
				return printRecords(cmd, store.Records())
			},
		},
		&cobra.Command{
			Use:   "import <legacy-file>",
			Short: "Merge records from the older semicolon-separated format",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := open(cmd)
				if err != nil {
					return err
				}
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "open legacy settings")
				}
				defer f.Close()
				records, err := settings.ImportLegacy(f)
				if err != nil {
					return err
				}
				if err := store.Merge(records); err != nil {
					return err
				}
				a.log.Info().Int("records", len(records)).Str("file", store.Path()).Msg("capturectl: legacy settings imported")
				return printRecords(cmd, store.Records())
			},
		},
		newSettingsSetCmd(open),
	)
	return cmd
}

func newSettingsSetCmd(open func(*cobra.Command) (*settings.Store, error)) *cobra.Command {
	var (
		enabled   bool
		document  bool
		connector string
	)
	cmd := &cobra.Command{
		Use:   "set <device-path>",
		Short: "Update the preferences of one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			if !fs.Changed("enabled") && !fs.Changed("document-camera") && !fs.Changed("connector") {
				return errors.New("nothing to set: use --enabled, --document-camera or --connector")
			}
			store, err := open(cmd)
			if err != nil {
				return err
			}
			path := args[0]

			if fs.Changed("connector") {
				ct := media.ConnectorUnspecified
				if connector != "" {
					var ok bool
					if ct, ok = media.ParseConnectorType(connector); !ok {
						return errors.Errorf("unknown connector %q", connector)
					}
				}
				if err := store.SetConnector(path, ct); err != nil {
					return err
				}
			}
			if fs.Changed("enabled") {
				if err := store.SetEnabled(path, enabled); err != nil {
					return err
				}
			}
			if fs.Changed("document-camera") {
				if err := store.SetDocumentCamera(path, document); err != nil {
					return err
				}
			}

			rec, _ := store.Get(path)
			return printRecords(cmd, []settings.Record{rec})
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", false, "Device is offered for capture")
	cmd.Flags().BoolVar(&document, "document-camera", false, "Device is a document camera")
	cmd.Flags().StringVar(&connector, "connector", "", "Preferred connector, empty to disable routing")
	return cmd
}

func printRecords(cmd *cobra.Command, records []settings.Record) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tENABLED\tDOCUMENT\tCONNECTOR")
	for _, r := range records {
		conn := r.Connector
		if conn == "" {
			conn = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Path, r.Name, strconv.FormatBool(r.Enabled), strconv.FormatBool(r.DocumentCamera), conn)
	}
	return tw.Flush()
}
