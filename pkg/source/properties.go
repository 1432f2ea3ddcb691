package source

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/magiconair/properties"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
)

// PropertiesSpec declares properties-file artifacts.
type PropertiesSpec struct {
	// Artifacts are group:artifact:type[:classifier]:version coordinates,
	// usually with type "properties".
	Artifacts []string
	// Prefix is prepended to every loaded key.
	Prefix string
	// CacheOnly caches the files without loading them.
	CacheOnly bool
}

type propertiesResolver struct {
	spec   PropertiesSpec
	graph  DependencyGraph
	logger *log.Logger
}

func (r *propertiesResolver) Kind() artifact.SourceKind { return artifact.SourceProperties }

func (r *propertiesResolver) Resolve(ctx context.Context) ([]artifact.Descriptor, error) {
	overrides, err := parseOverrides(r.spec.Artifacts)
	if err != nil {
		return nil, err
	}
	out := make([]artifact.Descriptor, 0, len(overrides))
	for _, o := range overrides {
		o.Source = artifact.SourceProperties
		resolved, err := r.graph.Lookup(ctx, o)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeUnresolved, err, "properties artifact %s cannot be resolved", o)
		}
		resolved.Source = artifact.SourceProperties
		out = append(out, resolved)
	}
	return out, nil
}

// LoadProperties reads the given files in order and returns their merged
// entries, later files overriding earlier ones. Keys get prefix prepended.
// Values are taken literally; ${...} references are not expanded.
func LoadProperties(paths []string, prefix string) (map[string]string, error) {
	loader := &properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
	out := make(map[string]string)
	for _, p := range paths {
		props, err := loader.LoadFile(p)
		if err != nil {
			return nil, errors.IO(err, "load properties", p, "")
		}
		for _, k := range props.Keys() {
			v, _ := props.Get(k)
			out[prefix+k] = v
		}
	}
	return out, nil
}
