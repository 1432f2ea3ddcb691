// Package pipeline runs the repository assembly stages for one project.
//
// The stages run strictly in order, each only after its predecessor's
// outputs are complete:
//
//  1. resolve:  build the tracker registry from every configured source
//  2. cache:    materialize each tracker into the cache directory
//  3. validate: read manifests and exclude invalid bundles
//  4. stage:    copy valid embedded artifacts into the work directory
//  5. index:    write the repository index, if any input changed
//  6. archive:  zip the work directory, if any file changed
//  7. target:   write the PDE target definition, when enabled
//
// Every stage that writes files keeps its own ledger, so an unchanged rerun
// copies, downloads and regenerates nothing and leaves the index and archive
// byte-identical.
//
// # Usage
//
//	cfg, err := pipeline.LoadConfig("osgirepo.toml")
//	if err != nil {
//	    return err
//	}
//	runner, err := pipeline.NewRunner(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer runner.Close()
//	result, err := runner.Execute(ctx)
//
// Run a prefix of the stages:
//
//	result, err := runner.Run(ctx, pipeline.StageIndex)
package pipeline

import (
	"time"

	"github.com/matzehuels/osgirepo/pkg/artifact"
)

// Stage names one pipeline step.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageCache    Stage = "cache"
	StageValidate Stage = "validate"
	StageStage    Stage = "stage"
	StageIndex    Stage = "index"
	StageArchive  Stage = "archive"
	StageTarget   Stage = "target"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageResolve, StageCache, StageValidate, StageStage, StageIndex, StageArchive, StageTarget}

// LedgerStages are the stages that persist a ledger.
var LedgerStages = []Stage{StageCache, StageStage, StageIndex, StageArchive}

// ParseStage returns the stage named s.
func ParseStage(s string) (Stage, bool) {
	for _, st := range Stages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Result contains the outcome of a pipeline run.
type Result struct {
	RunID   string
	Skipped bool

	// Resolved counts trackers per source kind after precedence.
	Resolved int
	Sources  map[artifact.SourceKind]int

	// Cache stage.
	Copied      int
	Downloaded  int
	Packed      int
	Referenced  int
	CarriedOver int
	// Removed lists cache inputs recorded by the previous run but not this
	// one.
	Removed []string

	// Validate stage.
	Valid            int
	Invalid          int
	InvalidArtifacts []string

	// Stage stage.
	Staged        int
	StagedCarried int
	Pruned        int

	IndexPath        string
	IndexRegenerated bool

	ArchivePath        string
	ArchiveRegenerated bool

	TargetPath string

	// Properties holds the loaded properties artifacts, when requested.
	Properties map[string]string

	Durations map[Stage]time.Duration
}
