package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// ledgerCommand manages the incremental build state.
func (c *CLI) ledgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage the incremental build state",
	}

	cmd.AddCommand(c.ledgerClearCommand())
	cmd.AddCommand(c.ledgerPathCommand())

	return cmd
}

// ledgerClearCommand forgets every stage's state so the next build
// reprocesses everything.
func (c *CLI) ledgerClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget recorded fingerprints so the next build starts over",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			runner, err := c.newRunner(cfg)
			if err != nil {
				return err
			}
			defer runner.Close()
			if err := runner.ResetLedgers(cmd.Context()); err != nil {
				return err
			}
			printSuccess("Cleared ledgers of %s", cfg.Project.Name)
			printDetail("Store: %s", ledgerLocation(cfg.Ledger.Dir, cfg.Ledger.RedisURL))
			return nil
		},
	}
}

// ledgerPathCommand prints where ledger state is kept.
func (c *CLI) ledgerPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the ledger store location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println(ledgerLocation(cfg.Ledger.Dir, cfg.Ledger.RedisURL))
			return nil
		},
	}
}

// ledgerLocation returns the Redis URL, password redacted, when one is
// configured, otherwise the ledger directory.
func ledgerLocation(dir, redisURL string) string {
	if redisURL != "" {
		if u, err := url.Parse(redisURL); err == nil {
			return u.Redacted()
		}
		return redisURL
	}
	return dir
}
