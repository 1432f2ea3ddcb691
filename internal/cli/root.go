// Package cli implements the osgirepo command-line interface.
//
// The commands map onto prefixes of the repository pipeline:
//   - build: every stage, from resolution to the target definition
//   - cache: resolve, cache and validate artifacts
//   - index: write the repository index, or index a directory in place
//   - pack: write the repository archive
//   - target: write the PDE target definition
//   - properties: cache properties artifacts and print their entries
//   - serve: serve the generated repository over HTTP
//   - ledger: inspect or clear the incremental build state
//
// # Configuration
//
// Settings come from osgirepo.toml (or --config), then OSGIREPO_*
// environment variables, then flags. Only flags set on the command line
// override the lower layers.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging and --quiet
// (-q) to replace progress logs with a spinner.
package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/osgirepo/pkg/pipeline"
)

// configFlags are the persistent flags that override configuration values.
type configFlags struct {
	cmd *cobra.Command

	config     string // config file path
	outputDir  string // output directory
	workDir    string // repository root
	pom        string // project POM
	project    string // project name, scopes the ledger
	offline    bool   // never touch the network
	embed      bool   // copy artifacts into the repository
	compressed bool   // gzip the index
	baseURL    string // absolute base URL for index locations
	increment  int64  // repository increment
}

func (f *configFlags) register(root *cobra.Command) {
	f.cmd = root
	pf := root.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "config file (default "+defaultConfigFile+" when present)")
	pf.StringVarP(&f.outputDir, "output-dir", "o", "", "output directory")
	pf.StringVar(&f.workDir, "work-dir", "", "repository root that is indexed and archived")
	pf.StringVar(&f.pom, "pom", "", "project POM whose dependencies are collected")
	pf.StringVar(&f.project, "project", "", "project name")
	pf.BoolVar(&f.offline, "offline", false, "use local files only")
	pf.BoolVar(&f.embed, "embed", true, "copy artifacts into the repository instead of referencing them")
	pf.BoolVar(&f.compressed, "compressed", false, "gzip the index")
	pf.StringVar(&f.baseURL, "base-url", "", "base URL for artifact locations in the index")
	pf.Int64Var(&f.increment, "increment", 0, "repository increment (default: current time)")
}

// load reads the config file, or returns the defaults when none exists.
func (f *configFlags) load() (*pipeline.Config, error) {
	path := f.config
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); errors.Is(err, os.ErrNotExist) {
			return pipeline.DefaultConfig(), nil
		}
		path = defaultConfigFile
	}
	return pipeline.LoadConfig(path)
}

// apply copies the flags that were set explicitly onto cfg.
func (f *configFlags) apply(cfg *pipeline.Config) {
	changed := func(name string) bool {
		return f.cmd != nil && f.cmd.PersistentFlags().Changed(name)
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("work-dir") {
		cfg.WorkDir = f.workDir
	}
	if changed("pom") {
		cfg.Build.POM = f.pom
	}
	if changed("project") {
		cfg.Project.Name = f.project
	}
	if changed("offline") {
		cfg.Offline = f.offline
	}
	if changed("embed") {
		cfg.Cache.Embed = f.embed
	}
	if changed("compressed") {
		cfg.Index.Compressed = f.compressed
	}
	if changed("base-url") {
		cfg.Index.BaseURL = f.baseURL
	}
	if changed("increment") {
		cfg.Index.Increment = f.increment
	}
}
