package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// propertiesCommand caches the configured properties artifacts and prints
// the merged entries.
func (c *CLI) propertiesCommand() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Cache properties artifacts and print their entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Properties.Artifacts) == 0 {
				printInfo("No properties artifacts configured")
				return nil
			}
			if cmd.Flags().Changed("prefix") {
				cfg.Properties.Prefix = prefix
			}
			cfg.Properties.CacheOnly = false

			runner, err := c.newRunner(cfg)
			if err != nil {
				return err
			}
			defer runner.Close()
			res, err := runner.Cache(cmd.Context())
			if err != nil {
				return err
			}
			printProperties(res.Properties)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix prepended to every key")
	return cmd
}

// printProperties prints entries as key=value lines in key order.
func printProperties(props map[string]string) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, props[k])
	}
}
