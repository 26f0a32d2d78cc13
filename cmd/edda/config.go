package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/untoldecay/edda/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect effective configuration",
}

func init() {
	rootCmd.AddCommand(configCmd)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every effective configuration value and which layer set it",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings := config.AllSettings()

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if jsonOutput {
		out := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			out[k] = map[string]interface{}{
				"value":  settings[k],
				"source": config.GetValueSource(k),
			}
		}
		return printJSON(out)
	}
	for _, k := range keys {
		fmt.Printf("%-32s %-12v %v\n", k, settings[k], config.GetValueSource(k))
	}
	return nil
}
