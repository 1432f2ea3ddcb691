// Package source turns source configurations into artifact descriptors.
//
// Each source kind is one variant of [Spec], selected by its Kind field:
//
//	artifact.SourceBuildDependency  → Build       the project's dependency graph
//	artifact.SourceRemoteMetadata   → Remote      units of p2 repositories
//	artifact.SourceFileset          → Fileset     files matched by globs
//	artifact.SourceProperties       → Properties  properties-file artifacts
//
// [New] builds the matching [Resolver]. Resolvers only query their
// collaborators; they never copy or download artifact content.
//
// An empty result is not an error. A declared override that cannot be
// resolved is, because the user asked for it by name.
package source

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/integrations/p2"
)

// Resolver produces the descriptors of one source.
type Resolver interface {
	Kind() artifact.SourceKind
	Resolve(ctx context.Context) ([]artifact.Descriptor, error)
}

// DependencyGraph is the project's dependency resolver.
type DependencyGraph interface {
	// ResolveDependencies returns every declared dependency with its scope,
	// optional and direct flags. Transitive ones are included only when
	// transitive is true.
	ResolveDependencies(ctx context.Context, transitive bool) ([]artifact.Descriptor, error)

	// Lookup resolves a single coordinate to a local file.
	Lookup(ctx context.Context, d artifact.Descriptor) (artifact.Descriptor, error)
}

// UnitLister lists units of a remote metadata repository.
type UnitLister interface {
	ListUnits(ctx context.Context, location string, wanted []string) ([]p2.Unit, error)
}

// Spec is the closed set of source configurations.
type Spec struct {
	Kind       artifact.SourceKind
	Build      *BuildSpec
	Remote     *RemoteSpec
	Fileset    *FilesetSpec
	Properties *PropertiesSpec
}

// Env carries the collaborators resolvers need.
type Env struct {
	Graph  DependencyGraph
	Units  UnitLister
	Logger *log.Logger
}

func (e Env) logger() *log.Logger {
	if e.Logger == nil {
		return log.NewWithOptions(io.Discard, log.Options{})
	}
	return e.Logger
}

// New returns the resolver for spec.
func New(spec Spec, env Env) (Resolver, error) {
	switch spec.Kind {
	case artifact.SourceBuildDependency:
		if spec.Build == nil {
			return nil, missingVariant(spec.Kind)
		}
		if env.Graph == nil {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "build dependency source needs a dependency graph")
		}
		return &buildResolver{spec: *spec.Build, graph: env.Graph, logger: env.logger()}, nil
	case artifact.SourceRemoteMetadata:
		if spec.Remote == nil {
			return nil, missingVariant(spec.Kind)
		}
		if env.Units == nil {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "remote metadata source needs a repository client")
		}
		return &remoteResolver{spec: *spec.Remote, units: env.Units, logger: env.logger()}, nil
	case artifact.SourceFileset:
		if spec.Fileset == nil {
			return nil, missingVariant(spec.Kind)
		}
		return &filesetResolver{spec: *spec.Fileset, logger: env.logger()}, nil
	case artifact.SourceProperties:
		if spec.Properties == nil {
			return nil, missingVariant(spec.Kind)
		}
		if env.Graph == nil {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "properties source needs a dependency graph")
		}
		return &propertiesResolver{spec: *spec.Properties, graph: env.Graph, logger: env.logger()}, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown source kind %q", spec.Kind)
}

func missingVariant(kind artifact.SourceKind) error {
	return errors.New(errors.ErrCodeInvalidConfig, "source of kind %s has no configuration", kind)
}
