package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		resolved, err := cfg.AsMap()
		if err != nil {
			return err
		}
		for _, key := range cfg.Keys() {
			fmt.Printf("%s=%s\n", key, resolved[key])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
