package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"homesrv.dev/dbtimetable"
	"homesrv.dev/dbtimetable/model"
)

var departuresCmd = &cobra.Command{
	Use:   "departures <station>",
	Short: "Lists upcoming departures at a station",
	Args:  cobra.ExactArgs(1),
	RunE:  timetableCommand(model.DirectionDeparture),
}

var arrivalsCmd = &cobra.Command{
	Use:   "arrivals <station>",
	Short: "Lists arrivals at a station",
	Args:  cobra.ExactArgs(1),
	RunE:  timetableCommand(model.DirectionArrival),
}

var (
	sortBy     string
	descending bool
	trains     []string
	fromTo     string
	pathFilter string
	limit      int
	dump       bool
)

func init() {
	for _, cmd := range []*cobra.Command{departuresCmd, arrivalsCmd} {
		cmd.Flags().StringVarP(&sortBy, "sort", "s", "date", "Sort by date, train, from_to or platform")
		cmd.Flags().BoolVarP(&descending, "desc", "", false, "Sort in descending order")
		cmd.Flags().StringSliceVarP(&trains, "train", "t", []string{}, "Restrict to these trains (e.g. 'RE 4400')")
		cmd.Flags().StringVarP(&fromTo, "via", "v", "", "Restrict to trains whose path contains this")
		cmd.Flags().StringVarP(&pathFilter, "path", "p", "", "Show stations along the path containing this")
		cmd.Flags().IntVarP(&limit, "limit", "l", -1, "Limit the number of items shown")
		cmd.Flags().BoolVarP(&dump, "dump", "", false, "Print raw consolidated and change records instead")
	}
}

func timetableCommand(dir model.Direction) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		field, err := dbtimetable.ParseSortField(sortBy)
		if err != nil {
			return err
		}
		order := dbtimetable.Ascending
		if descending {
			order = dbtimetable.Descending
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := loadManager(cfg)
		if err != nil {
			return err
		}

		resolved, err := resolveStation(manager, args[0])
		if err != nil {
			return err
		}

		station, err := manager.AddStation(resolved.ID)
		if err != nil {
			return err
		}

		err = station.Refresh(time.Now())
		if err != nil && len(station.Consolidated()) == 0 {
			return err
		}

		if dump {
			fmt.Print(station.Dump())
			fmt.Print(station.DumpChanges())
			return nil
		}

		view := station.Timetable(dir).Sort(field, order)
		if len(trains) > 0 {
			view = view.FilterTrain(trains...)
		}
		if fromTo != "" {
			view = view.FilterDestination(fromTo)
		}
		if limit >= 0 && limit < view.Len() {
			view = dbtimetable.NewView(view.Direction, view.Items[:limit])
		}

		fmt.Printf("%s %s\n", station.Name, dir)
		fmt.Print(view.Render(pathFilter))

		return nil
	}
}
