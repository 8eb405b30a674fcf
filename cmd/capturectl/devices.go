package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/catalog"
	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

func newDevicesCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := media.ParseCategory(category)
			if err != nil {
				return err
			}
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			devices, err := catalog.New(rt, a.log).Enumerate(cmd.Context(), cat)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATH")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Path)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "no %s devices found\n", cat)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "video", "Device category: video or audio")
	return cmd
}
