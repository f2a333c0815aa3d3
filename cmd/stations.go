package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var stationsCmd = &cobra.Command{
	Use:   "stations <id or name>",
	Short: "Looks up stations by EVA number or part of their name",
	Args:  cobra.ExactArgs(1),
	RunE:  stations,
}

func stations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := loadManager(cfg)
	if err != nil {
		return err
	}

	matches, err := manager.ResolveStation(args[0])
	if err != nil {
		return err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Name < matches[j].Name
	})

	for _, st := range matches {
		if st.DS100 != "" {
			fmt.Printf("%s: %s [%s]\n", st.ID, st.Name, st.DS100)
		} else {
			fmt.Printf("%s: %s\n", st.ID, st.Name)
		}
	}

	return nil
}
