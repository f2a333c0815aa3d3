package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"homesrv.dev/dbtimetable/disruptions"
)

var disruptionsCmd = &cobra.Command{
	Use:   "disruptions",
	Short: "Lists current disruptions from the configured feed",
	Args:  cobra.NoArgs,
	RunE:  listDisruptions,
}

var withText bool

func init() {
	disruptionsCmd.Flags().BoolVarP(&withText, "text", "", false, "Include the long description")
}

func listDisruptions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	feed, filter, err := loadFeed(cfg.Disruptions)
	if err != nil {
		return err
	}
	filter.WithText = filter.WithText || withText

	ds, err := feed.Disruptions(context.Background(), filter)
	if err != nil {
		return err
	}

	fmt.Print(disruptions.Render(ds, filter.WithText))

	return nil
}
