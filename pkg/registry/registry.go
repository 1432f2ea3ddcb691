// Package registry holds the per-run set of artifact trackers.
//
// A [Registry] keeps at most one tracker per identity key. When two sources
// emit the same identity, an override descriptor replaces an implicit one;
// otherwise the first registration wins. Iteration order is registration
// order of the surviving keys, so every derived view is deterministic.
//
// Views (All, Maven, P2, Properties, Filesets, Valid) are computed on demand
// from the single underlying map and are never mutated independently.
package registry

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/manifest"
	"github.com/matzehuels/osgirepo/pkg/source"
)

// Registry maps identity keys to trackers.
type Registry struct {
	types    artifact.Types
	order    []artifact.Key
	trackers map[artifact.Key]*artifact.Tracker
	logger   *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for precedence decisions and warnings.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry classifying artifacts with types.
func New(types artifact.Types, opts ...Option) *Registry {
	r := &Registry{
		types:    types,
		trackers: make(map[artifact.Key]*artifact.Tracker),
		logger:   log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds d and returns its tracker. The boolean is false when an
// existing tracker of equal or higher precedence kept its place; the returned
// tracker is then the existing one.
func (r *Registry) Register(d artifact.Descriptor) (*artifact.Tracker, bool) {
	key := d.Key()
	if cur, ok := r.trackers[key]; ok {
		if d.Precedence() <= cur.Precedence() {
			if d.Version != cur.Version {
				r.logger.Debug("duplicate identity ignored", "key", key, "kept", cur.Version, "ignored", d.Version)
			}
			return cur, false
		}
		r.logger.Debug("override replaces", "key", key, "version", d.Version, "replaced", cur.Version)
		t := artifact.NewTracker(d, r.types.Category(d))
		r.trackers[key] = t
		return t, true
	}
	t := artifact.NewTracker(d, r.types.Category(d))
	r.trackers[key] = t
	r.order = append(r.order, key)
	return t, true
}

// RegisterAll registers every descriptor and returns how many were kept.
func (r *Registry) RegisterAll(ds []artifact.Descriptor) int {
	n := 0
	for _, d := range ds {
		if _, ok := r.Register(d); ok {
			n++
		}
	}
	return n
}

// ResolveAll runs each resolver in order and registers its output. The first
// failing resolver aborts the run. It returns the registry size afterwards.
func (r *Registry) ResolveAll(ctx context.Context, resolvers ...source.Resolver) (int, error) {
	for _, res := range resolvers {
		if err := ctx.Err(); err != nil {
			return r.Len(), err
		}
		start := time.Now()
		ds, err := res.Resolve(ctx)
		if err != nil {
			return r.Len(), err
		}
		kept := r.RegisterAll(ds)
		r.logger.Debug("resolved source", "kind", res.Kind(), "artifacts", len(ds), "kept", kept, "took", time.Since(start))
	}
	return r.Len(), nil
}

// Warning describes one artifact excluded by validation.
type Warning struct {
	Tracker *artifact.Tracker
	Err     error
}

// Report summarizes a validation pass.
type Report struct {
	Valid    int
	Invalid  int
	Skipped  int
	Warnings []Warning
}

// Validate extracts manifest headers for every cached tracker whose category
// requires one and marks it valid or invalid. Invalid manifests are reported
// as warnings and never fail the call; other extraction errors do.
func (r *Registry) Validate(ctx context.Context, ex manifest.Extractor) (Report, error) {
	if ex == nil {
		ex = manifest.FileExtractor{}
	}
	var rep Report
	for _, t := range r.All() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if !t.Cached || !t.Category.RequiresManifest() {
			rep.Skipped++
			continue
		}
		headers, err := ex.Extract(t.CachedPath)
		if err == nil {
			err = manifest.Validate(headers)
		}
		switch {
		case err == nil:
			t.MarkValidated(headers, true)
			rep.Valid++
		case errors.IsRecoverable(err):
			t.MarkValidated(headers, false)
			rep.Invalid++
			rep.Warnings = append(rep.Warnings, Warning{Tracker: t, Err: err})
			r.logger.Warn("invalid manifest, artifact excluded", "artifact", t.Descriptor, "path", t.CachedPath, "err", errors.UserMessage(err))
		default:
			return rep, err
		}
	}
	return rep, nil
}

// Len returns the number of trackers.
func (r *Registry) Len() int { return len(r.order) }

// Get returns the tracker for key.
func (r *Registry) Get(key artifact.Key) (*artifact.Tracker, bool) {
	t, ok := r.trackers[key]
	return t, ok
}

// All returns every tracker in registration order.
func (r *Registry) All() []*artifact.Tracker {
	return r.filter(func(*artifact.Tracker) bool { return true })
}

// Maven returns trackers resolved from the build dependency graph.
func (r *Registry) Maven() []*artifact.Tracker {
	return r.bySource(artifact.SourceBuildDependency)
}

// P2 returns trackers resolved from remote metadata repositories.
func (r *Registry) P2() []*artifact.Tracker {
	return r.bySource(artifact.SourceRemoteMetadata)
}

// Filesets returns trackers matched by fileset globs.
func (r *Registry) Filesets() []*artifact.Tracker {
	return r.bySource(artifact.SourceFileset)
}

// Properties returns trackers of properties-file artifacts.
func (r *Registry) Properties() []*artifact.Tracker {
	return r.filter(func(t *artifact.Tracker) bool {
		return t.Category == artifact.CategoryProperties
	})
}

// Valid returns the trackers that may appear in the index and archive.
func (r *Registry) Valid() []*artifact.Tracker {
	return r.filter((*artifact.Tracker).Indexable)
}

// SearchByPath returns the tracker cached at or originating from path.
func (r *Registry) SearchByPath(path string) *artifact.Tracker {
	want := clean(path)
	for _, key := range r.order {
		t := r.trackers[key]
		if (t.CachedPath != "" && clean(t.CachedPath) == want) || (t.Origin != "" && clean(t.Origin) == want) {
			return t
		}
	}
	return nil
}

// Counts tallies trackers per source kind.
func (r *Registry) Counts() map[artifact.SourceKind]int {
	counts := make(map[artifact.SourceKind]int)
	for _, key := range r.order {
		counts[r.trackers[key].Source]++
	}
	return counts
}

func (r *Registry) bySource(kind artifact.SourceKind) []*artifact.Tracker {
	return r.filter(func(t *artifact.Tracker) bool { return t.Source == kind })
}

func (r *Registry) filter(keep func(*artifact.Tracker) bool) []*artifact.Tracker {
	var out []*artifact.Tracker
	for _, key := range r.order {
		if t := r.trackers[key]; keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func clean(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
