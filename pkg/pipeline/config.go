package pipeline

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/index"
	"github.com/matzehuels/osgirepo/pkg/source"
	"github.com/matzehuels/osgirepo/pkg/store"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	DefaultOutputDir      = "target"
	DefaultDefaultGroupID = "org.eclipse.platform"
	DefaultTimeout        = 60 * time.Second
	DefaultHTTPCacheTTL   = 24 * time.Hour
	DefaultFinalName      = "osgi-repository"

	// EnvPrefix prefixes every environment variable the config reads.
	EnvPrefix = "OSGIREPO_"
)

// Duration is a time.Duration that reads from TOML strings like "90s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// =============================================================================
// Config
// =============================================================================

// Config is the complete configuration of one pipeline run, grouped by
// concern. Build it with DefaultConfig or LoadConfig and call Validate once
// before use.
type Config struct {
	Project ProjectConfig `toml:"project"`

	// OutputDir holds the cache, work directory, ledger, archive and target.
	OutputDir string `toml:"output_dir"`
	// WorkDir is the repository root that is indexed and archived.
	WorkDir string `toml:"work_dir"`
	Offline bool   `toml:"offline"`
	// Skip turns the run into a logged no-op.
	Skip bool `toml:"skip"`

	Cache      CacheConfig      `toml:"cache"`
	Build      BuildConfig      `toml:"build"`
	Remote     RemoteConfig     `toml:"remote"`
	Filesets   []FilesetConfig  `toml:"filesets"`
	Properties PropertiesConfig `toml:"properties"`
	Index      IndexConfig      `toml:"index"`
	Archive    ArchiveConfig    `toml:"archive"`
	Target     TargetConfig     `toml:"target"`
	Ledger     LedgerConfig     `toml:"ledger"`

	validated bool
	increment int64
	indexFile string
}

// ProjectConfig identifies the project the repository is built for.
type ProjectConfig struct {
	// Name scopes the ledger and names the archive when FinalName is empty.
	Name       string `toml:"name"`
	FinalName  string `toml:"final_name"`
	Classifier string `toml:"classifier"`
	// LicenseURL is advertised for bundles without a Bundle-License header.
	LicenseURL string `toml:"license_url"`
}

// CacheConfig controls the cache store.
type CacheConfig struct {
	Dir              string `toml:"dir"`
	FileNameTemplate string `toml:"file_name_template"`
	GroupByType      bool   `toml:"group_by_type"`
	// Embed copies artifacts into the repository; otherwise they are
	// referenced where they were resolved.
	Embed bool `toml:"embed"`
}

// BuildConfig selects build dependencies from a project POM.
type BuildConfig struct {
	POM              string   `toml:"pom"`
	LocalRepository  string   `toml:"local_repository"`
	RemoteRepository string   `toml:"remote_repository"`
	Scopes           []string `toml:"scopes"`
	Optional         bool     `toml:"optional"`
	Transitive       bool     `toml:"transitive"`
	BundleTypes      []string `toml:"bundle_types"`
	SubsystemTypes   []string `toml:"subsystem_types"`
	Exclude          []string `toml:"exclude"`
	// Artifacts are override coordinates group:artifact:type[:classifier]:version.
	Artifacts []string `toml:"artifacts"`
	// Workspace maps "group:artifact" to module directories of the
	// in-progress build.
	Workspace map[string]string `toml:"workspace"`
}

// RemoteConfig configures p2 repositories and network access.
type RemoteConfig struct {
	DefaultGroupID string      `toml:"default_group_id"`
	Timeout        Duration    `toml:"timeout"`
	Retries        int         `toml:"retries"`
	Pool           string      `toml:"pool"`
	CacheDir       string      `toml:"cache_dir"`
	CacheTTL       Duration    `toml:"cache_ttl"`
	Sets           []RemoteSet `toml:"sets"`
}

// RemoteSet names the units taken from one repository location.
type RemoteSet struct {
	Location string   `toml:"location"`
	GroupID  string   `toml:"group_id"`
	Units    []string `toml:"units"`
}

// FilesetConfig is one directory tree matched by globs.
type FilesetConfig struct {
	Root     string   `toml:"root"`
	Includes []string `toml:"includes"`
	Excludes []string `toml:"excludes"`
}

// PropertiesConfig declares properties-file artifacts to cache and load.
type PropertiesConfig struct {
	Artifacts []string `toml:"artifacts"`
	Prefix    string   `toml:"prefix"`
	CacheOnly bool     `toml:"cache_only"`
}

// IndexConfig controls the repository index.
type IndexConfig struct {
	Enabled           bool   `toml:"enabled"`
	FileName          string `toml:"file_name"`
	Pretty            bool   `toml:"pretty"`
	Compressed        bool   `toml:"compressed"`
	ForceAbsolutePath bool   `toml:"force_absolute_path"`
	BaseURL           string `toml:"base_url"`
	// Increment overrides the time-derived increment for reproducible
	// builds. Zero means unset.
	Increment   int64  `toml:"increment"`
	Name        string `toml:"name"`
	URLTemplate string `toml:"url_template"`
}

// ArchiveConfig controls the repository archive.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`
}

// TargetConfig controls the PDE target definition.
type TargetConfig struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`
}

// LedgerConfig selects where ledger state is kept. RedisURL, when set, takes
// precedence over Dir.
type LedgerConfig struct {
	Dir      string `toml:"dir"`
	RedisURL string `toml:"redis_url"`
}

// DefaultConfig returns a configuration with every default applied except
// the paths derived from OutputDir, which Validate fills in.
func DefaultConfig() *Config {
	types := artifact.DefaultTypes()
	return &Config{
		OutputDir: DefaultOutputDir,
		Cache: CacheConfig{
			FileNameTemplate: string(store.DefaultTemplate),
			GroupByType:      true,
			Embed:            true,
		},
		Build: BuildConfig{
			LocalRepository: defaultLocalRepository(),
			BundleTypes:     types.Bundle,
			SubsystemTypes:  types.Subsystem,
		},
		Remote: RemoteConfig{
			DefaultGroupID: DefaultDefaultGroupID,
			Timeout:        Duration{DefaultTimeout},
			CacheTTL:       Duration{DefaultHTTPCacheTTL},
		},
		Index: IndexConfig{
			Enabled:  true,
			FileName: index.DefaultFileName,
			Pretty:   true,
			Name:     index.DefaultName,
		},
		Archive: ArchiveConfig{Enabled: true},
	}
}

// InPlaceConfig indexes the jars under root where they are. The compressed
// index is written to root itself and nothing is copied or archived. Ledger
// state goes to root/.cache, which the default fileset excludes skip.
func InPlaceConfig(root string) *Config {
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(root, ".cache")
	cfg.Cache.Dir = root
	cfg.WorkDir = root
	cfg.Filesets = []FilesetConfig{{Root: root}}
	cfg.Index.Compressed = true
	cfg.Archive.Enabled = false
	return cfg
}

func defaultLocalRepository() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".m2", "repository")
	}
	return filepath.Join(home, ".m2", "repository")
}

// LoadConfig reads a TOML file over the defaults. Keys absent from the file
// keep their default.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	return cfg, nil
}

// ApplyEnv overlays OSGIREPO_* variables read through lookup, usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s%s", EnvPrefix, name)
		}
		*dst = b
		return nil
	}

	str("OUTPUT_DIR", &c.OutputDir)
	str("WORK_DIR", &c.WorkDir)
	str("CACHE_DIR", &c.Cache.Dir)
	str("LOCAL_REPOSITORY", &c.Build.LocalRepository)
	str("REMOTE_REPOSITORY", &c.Build.RemoteRepository)
	str("P2_POOL", &c.Remote.Pool)
	str("INDEX_BASE_URL", &c.Index.BaseURL)
	str("LEDGER_DIR", &c.Ledger.Dir)
	str("LEDGER_REDIS_URL", &c.Ledger.RedisURL)
	for name, dst := range map[string]*bool{
		"OFFLINE":             &c.Offline,
		"SKIP":                &c.Skip,
		"EMBED":               &c.Cache.Embed,
		"FORCE_ABSOLUTE_PATH": &c.Index.ForceAbsolutePath,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup(EnvPrefix + "INDEX_INCREMENT"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%sINDEX_INCREMENT", EnvPrefix)
		}
		c.Index.Increment = n
	}
	if v, ok := lookup(EnvPrefix + "REMOTE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%sREMOTE_TIMEOUT", EnvPrefix)
		}
		c.Remote.Timeout = Duration{d}
	}
	return nil
}

// Validate fills derived defaults and rejects inconsistent settings. The
// index file name and increment are fixed here, once per run; later calls
// are no-ops.
func (c *Config) Validate() error {
	if c.validated {
		return nil
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(c.OutputDir, "cache")
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(c.OutputDir, "repository")
	}
	if c.Ledger.Dir == "" {
		c.Ledger.Dir = filepath.Join(c.OutputDir, ".ledger")
	}
	if c.Remote.CacheDir == "" {
		c.Remote.CacheDir = filepath.Join(c.OutputDir, ".http")
	}
	if c.Cache.FileNameTemplate == "" {
		c.Cache.FileNameTemplate = string(store.DefaultTemplate)
	}
	if c.Remote.DefaultGroupID == "" {
		c.Remote.DefaultGroupID = DefaultDefaultGroupID
	}
	if c.Remote.Timeout.Duration == 0 {
		c.Remote.Timeout = Duration{DefaultTimeout}
	}
	if c.Index.Name == "" {
		c.Index.Name = index.DefaultName
	}
	if len(c.Build.BundleTypes) == 0 && len(c.Build.SubsystemTypes) == 0 {
		types := artifact.DefaultTypes()
		c.Build.BundleTypes, c.Build.SubsystemTypes = types.Bundle, types.Subsystem
	}
	if c.Project.Name == "" {
		c.Project.Name = DefaultFinalName
	}
	if c.Project.FinalName == "" {
		c.Project.FinalName = c.Project.Name
	}
	if c.Target.Name == "" {
		c.Target.Name = c.Project.FinalName
	}

	// Ledger records are keyed by absolute path.
	for _, p := range []*string{&c.OutputDir, &c.Cache.Dir, &c.WorkDir, &c.Ledger.Dir, &c.Remote.CacheDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", *p)
		}
		*p = abs
	}

	if c.Remote.Timeout.Duration < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "remote.timeout must be positive")
	}
	if c.Remote.Retries < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "remote.retries must not be negative")
	}
	if err := errors.ValidateName("project.final_name", c.Project.FinalName); err != nil {
		return err
	}
	if c.Project.Classifier != "" {
		if err := errors.ValidateName("project.classifier", c.Project.Classifier); err != nil {
			return err
		}
	}
	if c.Index.FileName != "" {
		if err := errors.ValidateName("index.file_name", c.Index.FileName); err != nil {
			return err
		}
	}
	if c.Index.BaseURL != "" {
		if err := errors.ValidateURL(c.Index.BaseURL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "index.base_url")
		}
	}
	for i, set := range c.Remote.Sets {
		if set.Location == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "remote.sets[%d] has no location", i)
		}
	}
	for i, fs := range c.Filesets {
		if fs.Root == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "filesets[%d] has no root", i)
		}
	}
	if c.Build.POM == "" && len(c.Build.Artifacts) > 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "build.artifacts needs build.pom")
	}

	c.indexFile = index.FileName(c.Index.FileName, c.Index.Compressed)
	c.increment = c.Index.Increment
	if c.increment == 0 {
		c.increment = time.Now().UnixMilli()
	}
	c.validated = true
	return nil
}

// Types returns the packaging allow-lists.
func (c *Config) Types() artifact.Types {
	return artifact.Types{Bundle: c.Build.BundleTypes, Subsystem: c.Build.SubsystemTypes}
}

// IndexFileName returns the index file name, with .gz when compressed.
func (c *Config) IndexFileName() string { return c.indexFile }

// Increment returns the repository increment fixed at validation time.
func (c *Config) Increment() int64 { return c.increment }

// IndexPath is the index file inside the work directory.
func (c *Config) IndexPath() string { return filepath.Join(c.WorkDir, c.indexFile) }

// ArchivePath is <output>/<finalName>[-<classifier>].zip.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.OutputDir, c.baseName()+".zip")
}

// TargetPath is <output>/<finalName>[-<classifier>].target.
func (c *Config) TargetPath() string {
	return filepath.Join(c.OutputDir, c.baseName()+".target")
}

func (c *Config) baseName() string {
	if c.Project.Classifier != "" {
		return c.Project.FinalName + "-" + c.Project.Classifier
	}
	return c.Project.FinalName
}

// Sources returns the source variants the configuration enables, in
// registration order: build dependencies, properties, remote units, filesets.
func (c *Config) Sources() []source.Spec {
	var specs []source.Spec
	if c.Build.POM != "" {
		specs = append(specs, source.Spec{Kind: artifact.SourceBuildDependency, Build: &source.BuildSpec{
			Scopes:     c.Build.Scopes,
			Optional:   c.Build.Optional,
			Transitive: c.Build.Transitive,
			Types:      c.Types(),
			Exclude:    c.Build.Exclude,
			Overrides:  c.Build.Artifacts,
		}})
	}
	if len(c.Properties.Artifacts) > 0 {
		specs = append(specs, source.Spec{Kind: artifact.SourceProperties, Properties: &source.PropertiesSpec{
			Artifacts: c.Properties.Artifacts,
			Prefix:    c.Properties.Prefix,
			CacheOnly: c.Properties.CacheOnly,
		}})
	}
	if len(c.Remote.Sets) > 0 {
		spec := &source.RemoteSpec{DefaultGroupID: c.Remote.DefaultGroupID}
		for _, s := range c.Remote.Sets {
			spec.Sets = append(spec.Sets, source.RemoteSet{Location: s.Location, GroupID: s.GroupID, Units: s.Units})
		}
		specs = append(specs, source.Spec{Kind: artifact.SourceRemoteMetadata, Remote: spec})
	}
	if len(c.Filesets) > 0 {
		spec := &source.FilesetSpec{}
		for _, fs := range c.Filesets {
			spec.Sets = append(spec.Sets, source.Fileset{Root: fs.Root, Includes: fs.Includes, Excludes: fs.Excludes})
		}
		specs = append(specs, source.Spec{Kind: artifact.SourceFileset, Fileset: spec})
	}
	return specs
}

// IndexOptions converts the index settings.
func (c *Config) IndexOptions() index.Options {
	return index.Options{
		Root:              c.WorkDir,
		Pretty:            c.Index.Pretty,
		Compressed:        c.Index.Compressed,
		ForceAbsolutePath: c.Index.ForceAbsolutePath,
		BaseURL:           c.Index.BaseURL,
		Increment:         c.increment,
		Name:              c.Index.Name,
		LicenseURL:        c.Project.LicenseURL,
		URLTemplate:       c.Index.URLTemplate,
	}
}
