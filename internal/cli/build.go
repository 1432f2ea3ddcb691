package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/osgirepo/pkg/pipeline"
)

// buildCommand runs the whole pipeline.
func (c *CLI) buildCommand() *cobra.Command {
	var target bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble the repository: cache, index, archive and target",
		Long: `Build resolves every configured source, caches and validates the artifacts,
stages them into the work directory, writes the index and the archive, and
writes the PDE target definition when enabled.

Unchanged inputs are carried over from the previous run, so a rerun without
changes copies nothing and leaves the index and archive untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("target") {
				cfg.Target.Enabled = target
			}
			_, err = c.run(cmd.Context(), cfg, pipeline.StageTarget)
			return err
		},
	}
	cmd.Flags().BoolVar(&target, "target", false, "also write the target definition")
	return cmd
}

// indexCommand writes the repository index. With a directory argument it
// indexes the jars below it in place.
func (c *CLI) indexCommand() *cobra.Command {
	var includes, excludes []string
	var plain bool
	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Write the repository index",
		Long: `Index runs the pipeline up to the index stage.

Given a directory, it indexes the jars below it where they are instead and
writes a compressed index into that directory. Javadoc jars and metadata
files are excluded by default.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cfg, err := c.loadConfig()
				if err != nil {
					return err
				}
				_, err = c.run(cmd.Context(), cfg, pipeline.StageIndex)
				return err
			}

			cfg := pipeline.InPlaceConfig(args[0])
			if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
				return err
			}
			c.flags.apply(cfg)
			if len(includes) > 0 || len(excludes) > 0 {
				cfg.Filesets[0].Includes = includes
				cfg.Filesets[0].Excludes = excludes
			}
			if cmd.Flags().Changed("uncompressed") {
				cfg.Index.Compressed = !plain
			}
			_, err := c.run(cmd.Context(), cfg, pipeline.StageIndex)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&includes, "include", nil, "glob of files to index (default **/*.jar)")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "glob of files to skip")
	cmd.Flags().BoolVar(&plain, "uncompressed", false, "write index.xml instead of index.xml.gz")
	return cmd
}

// packCommand runs the pipeline up to the archive.
func (c *CLI) packCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pack",
		Short: "Write the repository archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			_, err = c.run(cmd.Context(), cfg, pipeline.StageArchive)
			return err
		},
	}
}

// targetCommand runs the whole pipeline with the target definition enabled.
func (c *CLI) targetCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Write the PDE target definition for the archived repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			cfg.Target.Enabled = true
			if name != "" {
				cfg.Target.Name = name
			}
			_, err = c.run(cmd.Context(), cfg, pipeline.StageTarget)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "target definition name (default: final name)")
	return cmd
}
