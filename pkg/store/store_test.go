package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/osgirepo/internal/testutil"
	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/cache"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/integrations"
	"github.com/matzehuels/osgirepo/pkg/ledger"
	"github.com/matzehuels/osgirepo/pkg/manifest"
	"github.com/matzehuels/osgirepo/pkg/observability"
)

func TestTemplateFormat(t *testing.T) {
	tests := []struct {
		tmpl Template
		n    Names
		want string
	}{
		{DefaultTemplate, Names{SymbolicName: "foo", Version: "1.0.0", Extension: "jar"}, "foo_1.0.0.jar"},
		{DefaultTemplate, Names{SymbolicName: "foo", Classifier: "sources", Version: "1.0.0", Extension: "jar"}, "foo-sources_1.0.0.jar"},
		{DefaultTemplate, Names{Name: "bar", Version: "2.0.0", Extension: "esa"}, "bar_2.0.0.esa"},
		{"", Names{SymbolicName: "foo", Version: "1.0.0", Extension: "jar"}, "foo_1.0.0.jar"},
		{"%g.%n-%v.%e", Names{GroupID: "org.x", Name: "a", Version: "1", Extension: "jar"}, "org.x.a-1.jar"},
		{"%c-%s.%e", Names{SymbolicName: "foo", Extension: "jar"}, "foo.jar"},
		{"%s_%v.%e", Names{SymbolicName: "foo", Extension: "jar"}, "foo.jar"},
		{"100%%-%s.%e", Names{SymbolicName: "foo", Extension: "jar"}, "100%-foo.jar"},
		{"%x-%s", Names{SymbolicName: "foo"}, "%x-foo"},
		{"%s.%e", Names{SymbolicName: "../evil/name", Extension: "jar"}, "__evil_name.jar"},
	}
	for _, tt := range tests {
		if got := tt.tmpl.Format(tt.n); got != tt.want {
			t.Errorf("%q.Format(%+v) = %q, want %q", tt.tmpl, tt.n, got, tt.want)
		}
	}
}

func TestFileName(t *testing.T) {
	s := &Store{Template: DefaultTemplate}
	d := artifact.Descriptor{GroupID: "test", Name: "anotherBundle", Version: "1.0", Type: "jar"}
	if got := s.FileName(d, nil); got != "anotherBundle_1.0.0.jar" {
		t.Errorf("without headers = %s", got)
	}
	h := manifest.Headers{
		artifact.HeaderBundleSymbolicName: "org.example.bundle;singleton:=true",
		artifact.HeaderBundleVersion:      "2.1",
	}
	if got := s.FileName(d, h); got != "org.example.bundle_2.1.0.jar" {
		t.Errorf("with headers = %s", got)
	}
	sub := artifact.Descriptor{Name: "feature", Version: "1.0.0", Type: "osgi.subsystem.feature"}
	if got := s.FileName(sub, manifest.Headers{artifact.HeaderSubsystemSymbolicName: "f", artifact.HeaderSubsystemVersion: "1"}); got != "f_1.0.0.esa" {
		t.Errorf("subsystem = %s", got)
	}
}

type fixture struct {
	t      *testing.T
	ledger cache.Cache
	root   string
	repo   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{t: t, ledger: c, root: filepath.Join(t.TempDir(), "cache"), repo: t.TempDir()}
}

func (f *fixture) store(embed bool) *Store {
	f.t.Helper()
	l, err := ledger.Open(context.Background(), f.ledger, "cache")
	if err != nil {
		f.t.Fatal(err)
	}
	return &Store{Root: f.root, Template: DefaultTemplate, GroupByType: true, Embed: embed, Ledger: l}
}

func (f *fixture) commit(s *Store) {
	f.t.Helper()
	if _, err := s.Ledger.Commit(context.Background()); err != nil {
		f.t.Fatal(err)
	}
}

func tracker(d artifact.Descriptor) *artifact.Tracker {
	return artifact.NewTracker(d, artifact.DefaultTypes().Category(d))
}

func TestMaterializeCarriesOverUnchangedInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	origin := filepath.Join(f.repo, "test", "anotherBundle", "1.0", "anotherBundle-1.0.jar")
	testutil.WriteJar(t, origin, testutil.Bundle("anotherBundle", "1.0"), nil)
	d := artifact.MustParseCoordinate("test:anotherBundle:jar:1.0")
	d.Origin = origin

	s := f.store(true)
	tr := tracker(d)
	res, err := s.Materialize(ctx, tr)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(f.root, "plugins", "anotherBundle_1.0.0.jar")
	if res.Status != Copied || res.Path != want {
		t.Fatalf("first run = %+v, want copied to %s", res, want)
	}
	if !tr.Cached || !tr.Embedded || tr.CachedPath != want {
		t.Errorf("tracker = %+v", tr)
	}
	f.commit(s)

	before, _ := os.Stat(want)
	time.Sleep(10 * time.Millisecond)

	s = f.store(true)
	res, err = s.Materialize(ctx, tracker(d))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != CarriedOver || res.Path != want {
		t.Errorf("second run = %+v, want carried over", res)
	}
	after, _ := os.Stat(want)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("carried-over file was rewritten")
	}
	entries, _ := os.ReadDir(filepath.Join(f.root, "plugins"))
	if len(entries) != 1 {
		t.Errorf("cache holds %d files, want 1", len(entries))
	}
}

func TestMaterializeModifiedInputReplacesOutput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	origin := filepath.Join(f.repo, "a.jar")
	testutil.WriteJar(t, origin, testutil.Bundle("a", "1.0"), nil)
	d := artifact.Descriptor{GroupID: "g", Name: "a", Version: "1.0", Type: "jar", Origin: origin, Source: artifact.SourceBuildDependency}

	s := f.store(true)
	if _, err := s.Materialize(ctx, tracker(d)); err != nil {
		t.Fatal(err)
	}
	f.commit(s)

	testutil.WriteJar(t, origin, testutil.Bundle("a", "1.1"), map[string]string{"x.txt": "changed"})
	s = f.store(true)
	res, err := s.Materialize(ctx, tracker(d))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Copied || filepath.Base(res.Path) != "a_1.1.0.jar" {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(f.root, "plugins", "a_1.0.0.jar")); !os.IsNotExist(err) {
		t.Error("stale output was not removed")
	}
}

func TestMaterializeRenamesOnLayoutChange(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Store)
		want  string
	}{
		{"template", func(s *Store) { s.Template = "%s-%v.%e" }, filepath.Join("plugins", "anotherBundle-1.0.0.jar")},
		{"grouping", func(s *Store) { s.GroupByType = false }, "anotherBundle_1.0.0.jar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			origin := filepath.Join(f.repo, "anotherBundle-1.0.jar")
			testutil.WriteJar(t, origin, testutil.Bundle("anotherBundle", "1.0"), nil)
			d := artifact.MustParseCoordinate("test:anotherBundle:jar:1.0")
			d.Origin = origin

			s := f.store(true)
			first, err := s.Materialize(ctx, tracker(d))
			if err != nil {
				t.Fatal(err)
			}
			f.commit(s)

			s = f.store(true)
			tt.apply(s)
			tr := tracker(d)
			res, err := s.Materialize(ctx, tr)
			if err != nil {
				t.Fatal(err)
			}
			want := filepath.Join(f.root, tt.want)
			if res.Status != Copied || res.Path != want || tr.CachedPath != want {
				t.Errorf("second run = %+v, want copied to %s", res, want)
			}
			if _, err := os.Stat(first.Path); !os.IsNotExist(err) {
				t.Errorf("old cache file %s was kept", first.Path)
			}
		})
	}
}

func TestMaterializeReference(t *testing.T) {
	f := newFixture(t)
	origin := filepath.Join(f.repo, "a.jar")
	testutil.WriteJar(t, origin, testutil.Bundle("a", "1.0"), nil)
	tr := tracker(artifact.Descriptor{GroupID: "g", Name: "a", Version: "1.0", Type: "jar", Origin: origin})

	res, err := f.store(false).Materialize(context.Background(), tr)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Referenced || tr.CachedPath != origin || tr.Embedded {
		t.Errorf("result = %+v, tracker = %+v", res, tr)
	}
	if _, err := os.Stat(f.root); !os.IsNotExist(err) {
		t.Error("reference mode must not create the cache")
	}
}

func TestMaterializeRemote(t *testing.T) {
	ctx := context.Background()
	jar := filepath.Join(t.TempDir(), "src.jar")
	testutil.WriteJar(t, jar, testutil.Bundle("org.remote", "3.0.0.v1"), nil)
	body := testutil.ReadFile(t, jar)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	f := newFixture(t)
	d := artifact.Descriptor{
		GroupID: "org.eclipse.platform", Name: "org.remote", Version: "3.0.0.v1", Type: "jar",
		Source: artifact.SourceRemoteMetadata, Origin: server.URL + "/plugins/org.remote_3.0.0.v1.jar",
	}

	// Remote artifacts are embedded even in reference mode.
	s := f.store(false)
	s.Client = integrations.NewClient(nil, integrations.Options{})
	res, err := s.Materialize(ctx, tracker(d))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(f.root, "plugins", "org.remote_3.0.0.v1.jar")
	if res.Status != Downloaded || res.Path != want {
		t.Fatalf("result = %+v", res)
	}

	// Offline without a ledger record falls back on the cached file.
	offline := &Store{Root: f.root, Template: DefaultTemplate, GroupByType: true,
		Client: integrations.NewClient(nil, integrations.Options{Offline: true})}
	res, err = offline.Materialize(ctx, tracker(d))
	if err != nil || res.Status != CarriedOver || res.Path != want {
		t.Errorf("offline = %+v, %v", res, err)
	}

	// Offline with nothing cached fails.
	empty := &Store{Root: t.TempDir(), Template: DefaultTemplate, GroupByType: true,
		Client: integrations.NewClient(nil, integrations.Options{Offline: true})}
	if _, err := empty.Materialize(ctx, tracker(d)); !errors.Is(err, errors.ErrCodeOffline) {
		t.Errorf("offline miss err = %v", err)
	}
}

type missCounter struct {
	observability.NoopCacheHooks
	mu     sync.Mutex
	misses int
	hits   int
}

func (m *missCounter) OnCacheMiss(context.Context, string) { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *missCounter) OnCacheHit(context.Context, string)  { m.mu.Lock(); m.hits++; m.mu.Unlock() }

func TestMaterializeWorkspaceAlwaysReprocessed(t *testing.T) {
	counter := &missCounter{}
	observability.SetCacheHooks(counter)
	defer observability.Reset()

	ctx := context.Background()
	f := newFixture(t)
	ws := filepath.Join(t.TempDir(), "target", "classes")
	testutil.WriteFile(t, filepath.Join(ws, "META-INF", "MANIFEST.MF"), testutil.Manifest(testutil.Bundle("ws.bundle", "1.0.0")))
	testutil.WriteFile(t, filepath.Join(ws, "A.class"), "class")
	d := artifact.Descriptor{GroupID: "g", Name: "ws", Version: "1.0.0", Type: "jar", Origin: ws, Workspace: true}

	for run := 0; run < 2; run++ {
		s := f.store(false)
		tr := tracker(d)
		res, err := s.Materialize(ctx, tr)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(res.Path) != "ws.bundle_1.0.0.jar" || !tr.Embedded {
			t.Fatalf("run %d: result = %+v", run, res)
		}
		f.commit(s)
	}
	if counter.misses != 2 || counter.hits != 0 {
		t.Errorf("misses = %d, hits = %d; want 2, 0", counter.misses, counter.hits)
	}
}

func TestMaterializeExistingIdenticalDestination(t *testing.T) {
	f := newFixture(t)
	origin := filepath.Join(f.repo, "a.jar")
	testutil.WriteJar(t, origin, testutil.Bundle("a", "1.0"), nil)
	dest := filepath.Join(f.root, "plugins", "a_1.0.0.jar")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, testutil.ReadFile(t, origin), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &Store{Root: f.root, Template: DefaultTemplate, GroupByType: true, Embed: true}
	res, err := s.Materialize(context.Background(), tracker(artifact.Descriptor{Name: "a", Version: "1.0", Type: "jar", Origin: origin}))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != CarriedOver {
		t.Errorf("status = %s, want carried over", res.Status)
	}
	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 1 {
		t.Errorf("temporary files left: %d entries", len(entries))
	}
}

func TestMaterializeFilesetInRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "sub", "a.jar")
	testutil.WriteJar(t, file, testutil.Bundle("a", "1.0"), nil)
	s := &Store{Root: root, Embed: true}
	tr := tracker(artifact.Descriptor{GroupID: "fileset", Name: "sub/a", Type: "jar", Extension: "jar", Source: artifact.SourceFileset, Origin: file})
	res, err := s.Materialize(context.Background(), tr)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Referenced || !tr.Embedded || tr.CachedPath != file {
		t.Errorf("result = %+v tracker = %+v", res, tr)
	}
}

func TestMaterializeMissingOrigin(t *testing.T) {
	s := &Store{Root: t.TempDir(), Embed: true}
	_, err := s.Materialize(context.Background(), tracker(artifact.Descriptor{Name: "x", Version: "1", Type: "jar", Origin: filepath.Join(t.TempDir(), "nope.jar")}))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("err = %v", err)
	}
	_, err = s.Materialize(context.Background(), tracker(artifact.Descriptor{Name: "x"}))
	if !errors.Is(err, errors.ErrCodeInternal) {
		t.Errorf("no origin err = %v", err)
	}
}
