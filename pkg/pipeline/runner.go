package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/osgirepo/pkg/archive"
	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/cache"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/httputil"
	"github.com/matzehuels/osgirepo/pkg/index"
	"github.com/matzehuels/osgirepo/pkg/integrations"
	"github.com/matzehuels/osgirepo/pkg/integrations/maven"
	"github.com/matzehuels/osgirepo/pkg/integrations/p2"
	"github.com/matzehuels/osgirepo/pkg/ledger"
	"github.com/matzehuels/osgirepo/pkg/manifest"
	"github.com/matzehuels/osgirepo/pkg/observability"
	"github.com/matzehuels/osgirepo/pkg/registry"
	"github.com/matzehuels/osgirepo/pkg/source"
	"github.com/matzehuels/osgirepo/pkg/store"
)

// manifestCacheSize bounds the memoized manifests of one run.
const manifestCacheSize = 4096

// Runner executes the pipeline for one validated Config. A Runner keeps the
// registry of its run between stages and is not safe for concurrent use;
// independent runs use independent Runners.
type Runner struct {
	Config *Config
	Logger *log.Logger

	// Optional collaborators. Nil ones are built from Config on first use.
	Graph       source.DependencyGraph
	Units       source.UnitLister
	Client      *integrations.Client
	Extractor   manifest.Extractor
	Indexer     index.Indexer
	LedgerStore cache.Cache

	ownsStore bool
	registry  *registry.Registry
	result    *Result
	done      map[Stage]bool
}

// NewRunner validates cfg and returns a runner for it.
// If logger is nil, output is discarded.
func NewRunner(cfg *Config, logger *log.Logger) (*Runner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{
		Config: cfg,
		Logger: logger,
		result: &Result{
			RunID:     uuid.NewString(),
			Sources:   map[artifact.SourceKind]int{},
			Durations: map[Stage]time.Duration{},
		},
		done: map[Stage]bool{},
	}, nil
}

// Close releases the ledger store if the runner opened it.
func (r *Runner) Close() error {
	if r.ownsStore && r.LedgerStore != nil {
		err := r.LedgerStore.Close()
		r.LedgerStore, r.ownsStore = nil, false
		return err
	}
	return nil
}

// Result returns the result accumulated so far.
func (r *Runner) Result() *Result { return r.result }

// Registry returns the tracker registry, or nil before resolution.
func (r *Runner) Registry() *registry.Registry { return r.registry }

// Execute runs every stage.
func (r *Runner) Execute(ctx context.Context) (*Result, error) {
	return r.Run(ctx, StageTarget)
}

// Run executes the stages up to and including until. Stages already run by
// this runner are not repeated.
func (r *Runner) Run(ctx context.Context, until Stage) (*Result, error) {
	if r.Config.Skip {
		r.Logger.Info("skipping repository assembly")
		r.result.Skipped = true
		return r.result, nil
	}
	for _, s := range Stages {
		if err := r.runStage(ctx, s); err != nil {
			return r.result, err
		}
		if s == until {
			break
		}
	}
	return r.result, nil
}

// Resolve builds the registry from the configured sources.
func (r *Runner) Resolve(ctx context.Context) (*Result, error) { return r.Run(ctx, StageResolve) }

// Cache materializes every resolved artifact.
func (r *Runner) Cache(ctx context.Context) (*Result, error) { return r.Run(ctx, StageCache) }

// Validate marks trackers valid or invalid from their manifests.
func (r *Runner) Validate(ctx context.Context) (*Result, error) { return r.Run(ctx, StageValidate) }

// Stage copies valid embedded artifacts into the work directory.
func (r *Runner) Stage(ctx context.Context) (*Result, error) { return r.Run(ctx, StageStage) }

// Index writes the repository index.
func (r *Runner) Index(ctx context.Context) (*Result, error) { return r.Run(ctx, StageIndex) }

// Pack archives the work directory.
func (r *Runner) Pack(ctx context.Context) (*Result, error) { return r.Run(ctx, StageArchive) }

// Target writes the target definition.
func (r *Runner) Target(ctx context.Context) (*Result, error) { return r.Run(ctx, StageTarget) }

func (r *Runner) runStage(ctx context.Context, s Stage) error {
	if r.done[s] {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, string(s))
	start := time.Now()

	var n int
	var err error
	switch s {
	case StageResolve:
		n, err = r.resolve(ctx)
	case StageCache:
		n, err = r.cache(ctx)
	case StageValidate:
		n, err = r.validate(ctx)
	case StageStage:
		n, err = r.stage(ctx)
	case StageIndex:
		n, err = r.index(ctx)
	case StageArchive:
		n, err = r.pack(ctx)
	case StageTarget:
		n, err = r.target()
	default:
		err = errors.New(errors.ErrCodeInternal, "unknown stage %q", s)
	}
	elapsed := time.Since(start)
	hooks.OnStageComplete(ctx, string(s), n, elapsed, err)
	r.result.Durations[s] = elapsed
	if err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	r.done[s] = true
	return nil
}

// =============================================================================
// Stages
// =============================================================================

func (r *Runner) resolve(ctx context.Context) (int, error) {
	cfg := r.Config
	r.registry = registry.New(cfg.Types(), registry.WithLogger(r.Logger))

	env := source.Env{Logger: r.Logger}
	var resolvers []source.Resolver
	for _, spec := range cfg.Sources() {
		switch spec.Kind {
		case artifact.SourceBuildDependency, artifact.SourceProperties:
			g, err := r.graph()
			if err != nil {
				return 0, err
			}
			env.Graph = g
		case artifact.SourceRemoteMetadata:
			u, err := r.units()
			if err != nil {
				return 0, err
			}
			env.Units = u
		}
		res, err := source.New(spec, env)
		if err != nil {
			return 0, err
		}
		resolvers = append(resolvers, res)
	}

	n, err := r.registry.ResolveAll(ctx, resolvers...)
	if err != nil {
		return n, err
	}
	r.result.Resolved = n
	r.result.Sources = r.registry.Counts()
	if n == 0 {
		r.Logger.Info("no artifacts resolved, nothing to do")
		return 0, nil
	}
	r.Logger.Info("resolved artifacts",
		"count", n,
		"maven", len(r.registry.Maven()),
		"p2", len(r.registry.P2()),
		"filesets", len(r.registry.Filesets()),
		"properties", len(r.registry.Properties()))
	return n, nil
}

func (r *Runner) cache(ctx context.Context) (int, error) {
	cfg := r.Config
	l, err := r.openLedger(ctx, StageCache)
	if err != nil {
		return 0, err
	}
	st := &store.Store{
		Root:        cfg.Cache.Dir,
		Template:    store.Template(cfg.Cache.FileNameTemplate),
		GroupByType: cfg.Cache.GroupByType,
		Embed:       cfg.Cache.Embed,
		Ledger:      l,
		Extractor:   r.extractor(),
		Logger:      r.Logger,
	}
	if len(r.registry.P2()) > 0 {
		if st.Client, err = r.client(); err != nil {
			return 0, err
		}
	}

	n := 0
	for _, t := range r.registry.All() {
		res, err := st.Materialize(ctx, t)
		if err != nil {
			// Completed inputs are still recorded so a retry skips them.
			if _, cerr := l.Commit(ctx); cerr != nil {
				r.Logger.Warn("could not persist cache ledger", "err", cerr)
			}
			return n, err
		}
		n++
		switch res.Status {
		case store.Copied:
			r.result.Copied++
		case store.Downloaded:
			r.result.Downloaded++
		case store.Packed:
			r.result.Packed++
		case store.Referenced:
			r.result.Referenced++
		case store.CarriedOver:
			r.result.CarriedOver++
		}
	}

	removed, err := l.Commit(ctx)
	if err != nil {
		return n, errors.Wrap(errors.ErrCodeIO, err, "persist cache ledger")
	}
	r.result.Removed = removed
	if len(removed) > 0 {
		r.Logger.Debug("inputs no longer referenced", "count", len(removed))
	}
	r.Logger.Info("cached artifacts",
		"copied", r.result.Copied,
		"downloaded", r.result.Downloaded,
		"packed", r.result.Packed,
		"referenced", r.result.Referenced,
		"carried_over", r.result.CarriedOver)

	if err := r.loadProperties(); err != nil {
		return n, err
	}
	return n, nil
}

func (r *Runner) loadProperties() error {
	cfg := r.Config.Properties
	if len(cfg.Artifacts) == 0 || cfg.CacheOnly {
		return nil
	}
	var paths []string
	for _, t := range r.registry.Properties() {
		if t.Cached {
			paths = append(paths, t.CachedPath)
		}
	}
	props, err := source.LoadProperties(paths, cfg.Prefix)
	if err != nil {
		return err
	}
	r.result.Properties = props
	r.Logger.Info("loaded properties", "files", len(paths), "keys", len(props))
	return nil
}

func (r *Runner) validate(ctx context.Context) (int, error) {
	rep, err := r.registry.Validate(ctx, r.extractor())
	if err != nil {
		return 0, err
	}
	r.result.Valid = rep.Valid
	r.result.Invalid = rep.Invalid
	for _, w := range rep.Warnings {
		r.result.InvalidArtifacts = append(r.result.InvalidArtifacts, w.Tracker.String())
	}
	if rep.Invalid > 0 {
		r.Logger.Warn("artifacts excluded by manifest validation", "count", rep.Invalid)
	}
	return rep.Valid, nil
}

func (r *Runner) stage(ctx context.Context) (int, error) {
	cfg := r.Config
	l, err := r.openLedger(ctx, StageStage)
	if err != nil {
		return 0, err
	}

	current := map[string]bool{}
	n := 0
	for _, t := range r.registry.Valid() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if !t.Embedded || integrations.IsRemote(t.CachedPath) || within(cfg.WorkDir, t.CachedPath) {
			continue
		}
		dest := filepath.Join(cfg.WorkDir, stagedPath(cfg.Cache.Dir, t))
		in := ledger.FileInput(t.CachedPath)
		status, err := l.RegisterInput(in)
		if err != nil {
			return n, errors.IO(err, "fingerprint", t.CachedPath, "")
		}
		if status == ledger.Unmodified && l.OutputsExist(in.ID) && fileExists(dest) {
			r.result.StagedCarried++
		} else {
			if err := copyAtomic(t.CachedPath, dest); err != nil {
				return n, err
			}
			r.result.Staged++
		}
		l.AssociateOutput(in.ID, dest)
		l.Done(in.ID)
		current[dest] = true
		t.MarkCached(dest, true)
		n++
	}

	for _, id := range l.Removed() {
		for _, out := range l.Outputs(id) {
			if current[out] || !within(cfg.WorkDir, out) {
				continue
			}
			if err := os.Remove(out); err == nil {
				r.result.Pruned++
				r.Logger.Debug("pruned stale file", "path", out)
			}
		}
	}
	if _, err := l.Commit(ctx); err != nil {
		return n, errors.Wrap(errors.ErrCodeIO, err, "persist stage ledger")
	}
	r.Logger.Info("staged repository", "dir", cfg.WorkDir, "copied", r.result.Staged, "carried_over", r.result.StagedCarried, "pruned", r.result.Pruned)
	return n, nil
}

// stagedPath keeps the cache-relative layout of t inside the work directory.
func stagedPath(cacheDir string, t *artifact.Tracker) string {
	if within(cacheDir, t.CachedPath) {
		dir, _ := filepath.Abs(cacheDir)
		path, _ := filepath.Abs(t.CachedPath)
		if rel, err := filepath.Rel(dir, path); err == nil {
			return rel
		}
	}
	return filepath.Join(string(t.Category), filepath.Base(t.CachedPath))
}

func (r *Runner) index(ctx context.Context) (int, error) {
	cfg := r.Config
	if !cfg.Index.Enabled {
		return 0, nil
	}
	path := cfg.IndexPath()
	l, err := r.openLedger(ctx, StageIndex)
	if err != nil {
		return 0, err
	}

	valid := r.registry.Valid()
	if len(valid) == 0 {
		if err := os.Remove(path); err == nil {
			r.Logger.Info("removed stale index", "path", path)
		}
		l.ForgetAggregate([]string{path})
		if _, err := l.Commit(ctx); err != nil {
			return 0, errors.Wrap(errors.ErrCodeIO, err, "persist index ledger")
		}
		r.Logger.Info("nothing to index")
		return 0, nil
	}

	opts := cfg.IndexOptions()
	inputs := make([]ledger.Input, 0, len(valid))
	for _, t := range valid {
		if integrations.IsRemote(t.CachedPath) {
			inputs = append(inputs, ledger.URLInput(t.CachedPath))
		} else {
			inputs = append(inputs, ledger.FileInput(t.CachedPath))
		}
	}
	batch := ledger.Batch{
		Outputs: []string{path},
		Inputs:  inputs,
		Salt: cache.Key(opts.Name, opts.BaseURL, opts.URLTemplate, opts.LicenseURL,
			strconv.FormatBool(opts.Pretty), strconv.FormatBool(opts.Compressed),
			strconv.FormatBool(opts.ForceAbsolutePath), strconv.FormatInt(cfg.Index.Increment, 10)),
	}
	var wrote bool
	agg, err := l.AggregateIfNecessary(ctx, batch, func(ctx context.Context) error {
		var err error
		wrote, err = index.Write(ctx, path, valid, opts, r.indexer())
		return err
	})
	if err != nil {
		return 0, err
	}
	if _, err := l.Commit(ctx); err != nil {
		return 0, errors.Wrap(errors.ErrCodeIO, err, "persist index ledger")
	}
	r.result.IndexPath = path
	r.result.IndexRegenerated = agg.Regenerated && wrote
	if agg.Regenerated {
		r.Logger.Info("wrote index", "path", path, "resources", len(valid))
	} else {
		r.Logger.Debug("index carried over", "path", path)
	}
	return len(valid), nil
}

func (r *Runner) pack(ctx context.Context) (int, error) {
	cfg := r.Config
	if !cfg.Archive.Enabled {
		return 0, nil
	}
	out := cfg.ArchivePath()
	files, err := archive.Files(cfg.WorkDir, out)
	if err != nil {
		return 0, err
	}
	l, err := r.openLedger(ctx, StageArchive)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		if err := os.Remove(out); err == nil {
			r.Logger.Info("removed stale archive", "path", out)
		}
		l.ForgetAggregate([]string{out})
		if _, err := l.Commit(ctx); err != nil {
			return 0, errors.Wrap(errors.ErrCodeIO, err, "persist archive ledger")
		}
		r.Logger.Warn("work directory is empty, no archive written", "dir", cfg.WorkDir)
		return 0, nil
	}

	inputs := make([]ledger.Input, len(files))
	for i, f := range files {
		inputs[i] = ledger.FileInput(filepath.Join(cfg.WorkDir, filepath.FromSlash(f)))
	}
	agg, err := l.AggregateIfNecessary(ctx, ledger.Batch{Outputs: []string{out}, Inputs: inputs, Salt: cfg.WorkDir},
		func(ctx context.Context) error {
			res, err := archive.Pack(ctx, cfg.WorkDir, out)
			if err != nil {
				return err
			}
			r.Logger.Info("wrote archive", "path", out, "files", res.Files, "bytes", res.Bytes)
			return nil
		})
	if err != nil {
		return 0, err
	}
	if _, err := l.Commit(ctx); err != nil {
		return 0, errors.Wrap(errors.ErrCodeIO, err, "persist archive ledger")
	}
	r.result.ArchivePath = out
	r.result.ArchiveRegenerated = agg.Regenerated
	if !agg.Regenerated {
		r.Logger.Debug("archive carried over", "path", out)
	}
	return len(files), nil
}

func (r *Runner) target() (int, error) {
	cfg := r.Config
	if !cfg.Target.Enabled {
		return 0, nil
	}
	archivePath := cfg.ArchivePath()
	path := cfg.TargetPath()
	if !fileExists(archivePath) {
		if err := os.Remove(path); err == nil {
			r.Logger.Info("removed stale target definition", "path", path)
		}
		r.Logger.Warn("skipping target definition, no archive was generated", "archive", archivePath)
		return 0, nil
	}
	valid := r.registry.Valid()
	if err := index.WriteTarget(path, cfg.Target.Name, archivePath, valid); err != nil {
		return 0, err
	}
	units := len(index.TargetUnits(valid))
	r.result.TargetPath = path
	r.Logger.Info("wrote target definition", "path", path, "units", units)
	return units, nil
}

// =============================================================================
// Collaborators
// =============================================================================

func (r *Runner) client() (*integrations.Client, error) {
	if r.Client != nil {
		return r.Client, nil
	}
	cfg := r.Config
	hc, err := httputil.NewCache(cfg.Remote.CacheDir, cfg.Remote.CacheTTL.Duration)
	if err != nil {
		return nil, errors.IO(err, "create http cache", cfg.Remote.CacheDir, "")
	}
	r.Client = integrations.NewClient(hc, integrations.Options{
		Timeout: cfg.Remote.Timeout.Duration,
		Retries: cfg.Remote.Retries,
		Offline: cfg.Offline,
		Logger:  r.Logger,
	})
	return r.Client, nil
}

func (r *Runner) graph() (source.DependencyGraph, error) {
	if r.Graph != nil {
		return r.Graph, nil
	}
	c, err := r.client()
	if err != nil {
		return nil, err
	}
	cfg := r.Config.Build
	g := maven.NewGraph(maven.NewRepository(cfg.LocalRepository, cfg.RemoteRepository, c), cfg.POM, r.Logger)
	for k, dir := range cfg.Workspace {
		g.Workspace[k] = dir
	}
	r.Graph = g
	return g, nil
}

func (r *Runner) units() (source.UnitLister, error) {
	if r.Units != nil {
		return r.Units, nil
	}
	c, err := r.client()
	if err != nil {
		return nil, err
	}
	r.Units = p2.NewClient(c, r.Config.Remote.Pool, r.Logger)
	return r.Units, nil
}

func (r *Runner) extractor() manifest.Extractor {
	if r.Extractor == nil {
		ex, err := manifest.NewCachingExtractor(manifest.FileExtractor{}, manifestCacheSize)
		if err != nil {
			r.Extractor = manifest.FileExtractor{}
		} else {
			r.Extractor = ex
		}
	}
	return r.Extractor
}

func (r *Runner) indexer() index.Indexer {
	if r.Indexer == nil {
		r.Indexer = &index.XMLIndexer{Extractor: r.extractor(), Logger: r.Logger}
	}
	return r.Indexer
}

// =============================================================================
// Ledgers
// =============================================================================

func (r *Runner) ledgerStore(ctx context.Context) (cache.Cache, error) {
	if r.LedgerStore == nil {
		cfg := r.Config.Ledger
		var (
			c   cache.Cache
			err error
		)
		if cfg.RedisURL != "" {
			c, err = cache.NewRedisCache(ctx, cfg.RedisURL)
		} else {
			c, err = cache.NewFileCache(cfg.Dir)
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIO, err, "open ledger store")
		}
		r.LedgerStore, r.ownsStore = c, true
	}
	return cache.Scoped(r.LedgerStore, r.Config.Project.Name+":"), nil
}

func (r *Runner) openLedger(ctx context.Context, s Stage) (*ledger.Ledger, error) {
	backend, err := r.ledgerStore(ctx)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(ctx, backend, string(s), ledger.WithLogger(r.Logger))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "open %s ledger", s)
	}
	return l, nil
}

// ResetLedgers forgets the recorded state of every stage, so the next run
// reprocesses everything.
func (r *Runner) ResetLedgers(ctx context.Context) error {
	for _, s := range LedgerStages {
		l, err := r.openLedger(ctx, s)
		if err != nil {
			return err
		}
		if err := l.Reset(ctx); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "reset %s ledger", s)
		}
	}
	return nil
}
