package source

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/integrations"
)

// ScopeEmpty selects dependencies that declare no scope.
const ScopeEmpty = "empty"

// BuildSpec filters the project's dependency graph.
type BuildSpec struct {
	// Scopes lists the accepted scopes. Nil means compile only; an empty,
	// non-nil slice selects nothing.
	Scopes     []string
	Optional   bool
	Transitive bool
	Types      artifact.Types
	// Exclude lists artifact ids that are never selected.
	Exclude []string
	// Overrides are group:artifact:type[:classifier]:version coordinates
	// that replace graph entries with the same identity.
	Overrides []string
}

// EffectiveScopes returns the scopes the filter accepts.
func (s BuildSpec) EffectiveScopes() []string {
	if s.Scopes == nil {
		return []string{"compile"}
	}
	return s.Scopes
}

type buildResolver struct {
	spec   BuildSpec
	graph  DependencyGraph
	logger *log.Logger
}

func (r *buildResolver) Kind() artifact.SourceKind { return artifact.SourceBuildDependency }

func (r *buildResolver) Resolve(ctx context.Context) ([]artifact.Descriptor, error) {
	overrides, err := parseOverrides(r.spec.Overrides)
	if err != nil {
		return nil, err
	}
	replaced := make(map[artifact.Key]bool, len(overrides))
	for _, o := range overrides {
		if !r.spec.Types.Allowed(o.Type) {
			return nil, errors.New(errors.ErrCodeInvalidConfig,
				"override %s has type %q, which is not an accepted bundle or subsystem type", o, o.Type)
		}
		replaced[o.Key()] = true
	}

	deps, err := r.graph.ResolveDependencies(ctx, r.spec.Transitive)
	if err != nil {
		return nil, err
	}

	var out []artifact.Descriptor
	for _, d := range deps {
		if replaced[d.Key()] {
			r.logger.Debug("dependency replaced by override", "artifact", d)
			continue
		}
		if !selected(r.spec, d) {
			continue
		}
		resolved, err := r.graph.Lookup(ctx, d)
		if err != nil {
			return nil, integrations.Classify(err, "resolve dependency %s", d)
		}
		out = append(out, resolved)
	}

	for _, o := range overrides {
		resolved, err := r.graph.Lookup(ctx, o)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeUnresolved, err, "override artifact %s cannot be resolved", o)
		}
		resolved.Source = artifact.SourceBuildDependency
		resolved.Override = true
		out = append(out, resolved)
	}
	return out, nil
}

// selected applies the scope, optional, transitive, type and exclusion
// filters in that order.
func selected(spec BuildSpec, d artifact.Descriptor) bool {
	scopes := spec.EffectiveScopes()
	scopeOK := slices.Contains(scopes, d.Scope) || (d.Scope == "" && slices.Contains(scopes, ScopeEmpty))
	switch {
	case !scopeOK:
		return false
	case d.Optional && !spec.Optional:
		return false
	case !d.Direct && !spec.Transitive:
		return false
	case !spec.Types.Allowed(d.Type):
		return false
	case slices.Contains(spec.Exclude, d.Name):
		return false
	}
	return true
}

func parseOverrides(coords []string) ([]artifact.Descriptor, error) {
	out := make([]artifact.Descriptor, 0, len(coords))
	for _, c := range coords {
		d, err := artifact.ParseCoordinate(c)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
