package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/osgirepo/internal/testutil"
	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osgirepo.toml")
	testutil.WriteFile(t, path, `
output_dir = "out"
offline = true

[project]
name = "demo"
classifier = "repo"

[build]
pom = "pom.xml"
scopes = ["compile", "runtime"]
artifacts = ["test:anotherBundle:jar:1.0"]

[remote]
timeout = "90s"

[[remote.sets]]
location = "https://download.eclipse.org/releases/latest"
units = ["org.eclipse.core.runtime"]

[index]
compressed = true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "demo" || !cfg.Offline || cfg.OutputDir != "out" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Remote.Timeout.Duration != 90*time.Second {
		t.Errorf("timeout = %s", cfg.Remote.Timeout)
	}
	if len(cfg.Remote.Sets) != 1 || cfg.Remote.Sets[0].Units[0] != "org.eclipse.core.runtime" {
		t.Errorf("sets = %+v", cfg.Remote.Sets)
	}
	// Defaults survive keys absent from the file.
	if !cfg.Cache.Embed || !cfg.Index.Enabled || !cfg.Index.Pretty {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "colour = \"blue\"\n"},
		{"bad syntax", "[index\n"},
		{"bad duration", "[remote]\ntimeout = \"soon\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".toml")
			testutil.WriteFile(t, path, tt.content)
			if _, err := LoadConfig(path); !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("err = %v, want INVALID_CONFIG", err)
			}
		})
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OSGIREPO_OUTPUT_DIR":       "/tmp/out",
		"OSGIREPO_OFFLINE":          "true",
		"OSGIREPO_EMBED":            "false",
		"OSGIREPO_INDEX_INCREMENT":  "42",
		"OSGIREPO_REMOTE_TIMEOUT":   "5s",
		"OSGIREPO_LEDGER_REDIS_URL": "redis://localhost:6379/0",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "/tmp/out" || !cfg.Offline || cfg.Cache.Embed {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Index.Increment != 42 || cfg.Remote.Timeout.Duration != 5*time.Second {
		t.Errorf("increment = %d, timeout = %s", cfg.Index.Increment, cfg.Remote.Timeout)
	}
	if cfg.Ledger.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", cfg.Ledger.RedisURL)
	}

	env = map[string]string{"OSGIREPO_SKIP": "maybe"}
	if err := DefaultConfig().ApplyEnv(lookup); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
}

func TestValidateDefaults(t *testing.T) {
	out := t.TempDir()
	cfg := DefaultConfig()
	cfg.OutputDir = out
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Dir != filepath.Join(out, "cache") || cfg.WorkDir != filepath.Join(out, "repository") {
		t.Errorf("dirs = %s, %s", cfg.Cache.Dir, cfg.WorkDir)
	}
	if cfg.Project.FinalName != DefaultFinalName || cfg.Target.Name != DefaultFinalName {
		t.Errorf("names = %s, %s", cfg.Project.FinalName, cfg.Target.Name)
	}
	if cfg.IndexPath() != filepath.Join(out, "repository", "index.xml") {
		t.Errorf("index path = %s", cfg.IndexPath())
	}
	if cfg.ArchivePath() != filepath.Join(out, DefaultFinalName+".zip") {
		t.Errorf("archive path = %s", cfg.ArchivePath())
	}

	// The increment is fixed once.
	inc := cfg.Increment()
	if inc == 0 {
		t.Fatal("increment not set")
	}
	time.Sleep(2 * time.Millisecond)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Increment() != inc {
		t.Error("increment changed on revalidation")
	}
}

func TestValidateNaming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Project.FinalName = "repo"
	cfg.Project.Classifier = "site"
	cfg.Index.Compressed = true
	cfg.Index.Increment = 7
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(cfg.ArchivePath()) != "repo-site.zip" || filepath.Base(cfg.TargetPath()) != "repo-site.target" {
		t.Errorf("paths = %s, %s", cfg.ArchivePath(), cfg.TargetPath())
	}
	if cfg.IndexFileName() != "index.xml.gz" || cfg.Increment() != 7 {
		t.Errorf("index = %s, increment = %d", cfg.IndexFileName(), cfg.Increment())
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"final name with separator", func(c *Config) { c.Project.FinalName = "a/b" }},
		{"index name traversal", func(c *Config) { c.Index.FileName = ".." }},
		{"bad base url", func(c *Config) { c.Index.BaseURL = "::not a url" }},
		{"negative retries", func(c *Config) { c.Remote.Retries = -1 }},
		{"remote set without location", func(c *Config) { c.Remote.Sets = []RemoteSet{{Units: []string{"a"}}} }},
		{"fileset without root", func(c *Config) { c.Filesets = []FilesetConfig{{}} }},
		{"overrides without pom", func(c *Config) { c.Build.Artifacts = []string{"g:a:jar:1"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.OutputDir = t.TempDir()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("err = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestSourcesOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Build.POM = "pom.xml"
	cfg.Filesets = []FilesetConfig{{Root: "bundles"}}
	cfg.Remote.Sets = []RemoteSet{{Location: "https://example.org/p2"}}
	cfg.Properties.Artifacts = []string{"g:conf:properties:1"}

	want := []artifact.SourceKind{
		artifact.SourceBuildDependency,
		artifact.SourceProperties,
		artifact.SourceRemoteMetadata,
		artifact.SourceFileset,
	}
	specs := cfg.Sources()
	if len(specs) != len(want) {
		t.Fatalf("got %d sources, want %d", len(specs), len(want))
	}
	for i, s := range specs {
		if s.Kind != want[i] {
			t.Errorf("source %d = %s, want %s", i, s.Kind, want[i])
		}
	}
}

func TestParseStage(t *testing.T) {
	if s, ok := ParseStage("index"); !ok || s != StageIndex {
		t.Errorf("ParseStage(index) = %s, %v", s, ok)
	}
	if _, ok := ParseStage("deploy"); ok {
		t.Error("unknown stage accepted")
	}
}
