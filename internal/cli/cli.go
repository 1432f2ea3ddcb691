package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/osgirepo/pkg/buildinfo"
	"github.com/matzehuels/osgirepo/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "osgirepo"

	// defaultConfigFile is read from the working directory when --config is
	// not given and the file exists.
	defaultConfigFile = appName + ".toml"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	flags configFlags
	quiet bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "osgirepo assembles OSGi repositories",
		Long:          `osgirepo collects bundles and subsystems from a Maven build, p2 repositories and local directories, and publishes them as an indexed OSGi repository with an archive and an optional PDE target definition.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	c.flags.register(root)
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "show a spinner instead of progress logs")

	root.AddCommand(c.buildCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.indexCommand())
	root.AddCommand(c.packCommand())
	root.AddCommand(c.targetCommand())
	root.AddCommand(c.propertiesCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.ledgerCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// loadConfig builds the configuration of the current invocation: the TOML
// file, then OSGIREPO_* variables, then flags.
func (c *CLI) loadConfig() (*pipeline.Config, error) {
	cfg, err := c.flags.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	c.flags.apply(cfg)
	return cfg, nil
}

// newRunner creates a pipeline runner for cfg.
func (c *CLI) newRunner(cfg *pipeline.Config) (*pipeline.Runner, error) {
	return pipeline.NewRunner(cfg, c.Logger)
}

// run executes the stages up to until and prints a summary.
func (c *CLI) run(ctx context.Context, cfg *pipeline.Config, until pipeline.Stage) (*pipeline.Result, error) {
	runner, err := c.newRunner(cfg)
	if err != nil {
		return nil, err
	}
	defer runner.Close()

	prog := newProgress(c.Logger)
	var res *pipeline.Result
	if c.quiet {
		res, err = c.runQuiet(ctx, runner, until)
	} else {
		res, err = runner.Run(ctx, until)
	}
	if err != nil {
		return res, err
	}
	if res.Skipped {
		printInfo("Skipped")
		return res, nil
	}
	prog.done("Finished up to " + string(until))
	printResult(cfg, res)
	return res, nil
}
