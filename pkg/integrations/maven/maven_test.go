package maven

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/osgirepo/internal/testutil"
	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/integrations"
)

func pom(groupID, artifactID, version, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <modelVersion>4.0.0</modelVersion>
  <groupId>` + groupID + `</groupId>
  <artifactId>` + artifactID + `</artifactId>
  <version>` + version + `</version>
` + body + `
</project>`
}

func dep(groupID, artifactID, version, extra string) string {
	return `<dependency><groupId>` + groupID + `</groupId><artifactId>` + artifactID +
		`</artifactId><version>` + version + `</version>` + extra + `</dependency>`
}

func installPOM(t *testing.T, repo, groupID, artifactID, version, body string) {
	t.Helper()
	d := pomDescriptor(groupID, artifactID, version)
	testutil.WriteFile(t, filepath.Join(repo, filepath.FromSlash(RelPath(d))), pom(groupID, artifactID, version, body))
}

func keys(ds []artifact.Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.GroupID + ":" + d.Name + ":" + d.Version + ":" + d.Scope
	}
	return out
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		d    artifact.Descriptor
		want string
	}{
		{artifact.Descriptor{GroupID: "org.example", Name: "a", Version: "1.0", Type: "jar"}, "org/example/a/1.0/a-1.0.jar"},
		{artifact.Descriptor{GroupID: "org.example", Name: "a", Version: "1.0", Type: "bundle", Classifier: "sources"}, "org/example/a/1.0/a-1.0-sources.jar"},
		{artifact.Descriptor{GroupID: "g", Name: "feat", Version: "2", Type: "osgi.subsystem.feature"}, "g/feat/2/feat-2.esa"},
		{pomDescriptor("g.h", "p", "3"), "g/h/p/3/p-3.pom"},
	}
	for _, tt := range tests {
		if got := RelPath(tt.d); got != tt.want {
			t.Errorf("RelPath(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRepositoryFetch(t *testing.T) {
	ctx := context.Background()
	local := t.TempDir()
	d := artifact.Descriptor{GroupID: "org.example", Name: "remote", Version: "1.0", Type: "jar"}

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path == "/maven2/org/example/remote/1.0/remote-1.0.jar" {
			_, _ = w.Write([]byte("remote jar"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	repo := NewRepository(local, server.URL+"/maven2", integrations.NewClient(nil, integrations.Options{}))
	p, err := repo.Fetch(ctx, d)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p != repo.Path(d) {
		t.Errorf("path = %s, want %s", p, repo.Path(d))
	}
	if data, _ := os.ReadFile(p); string(data) != "remote jar" {
		t.Errorf("content = %q", data)
	}

	// Present locally now, no second request.
	if _, err := repo.Fetch(ctx, d); err != nil || hits != 1 {
		t.Errorf("second Fetch err = %v, hits = %d", err, hits)
	}

	missing := d
	missing.Name = "missing"
	if _, err := repo.Fetch(ctx, missing); !stderrors.Is(err, integrations.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}

	offline := NewRepository(t.TempDir(), server.URL+"/maven2", integrations.NewClient(nil, integrations.Options{Offline: true}))
	if _, err := offline.Fetch(ctx, d); !stderrors.Is(err, integrations.ErrOffline) {
		t.Errorf("offline err = %v", err)
	}

	localOnly := NewRepository(t.TempDir(), "", nil)
	if _, err := localOnly.Fetch(ctx, d); !stderrors.Is(err, integrations.ErrNotFound) {
		t.Errorf("local-only err = %v", err)
	}
}

func TestGraphDirect(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "pom.xml")
	testutil.WriteFile(t, project, pom("com.example", "app", "1.0.0", `
  <properties><lib.version>2.1</lib.version></properties>
  <dependencyManagement><dependencies>`+dep("org.managed", "managed", "9.9", "")+`</dependencies></dependencyManagement>
  <dependencies>
    `+dep("org.lib", "lib", "${lib.version}", "")+`
    <dependency><groupId>org.managed</groupId><artifactId>managed</artifactId></dependency>
    `+dep("org.self", "self", "${project.version}", "<scope>runtime</scope>")+`
    `+dep("junit", "junit", "4.13", "<scope>test</scope>")+`
    `+dep("org.opt", "opt", "1", "<optional>true</optional>")+`
    `+dep("org.bad", "bad", "${undefined}", "")+`
    `+dep("org.osgi", "feature", "1", "<type>osgi.subsystem.feature</type>")+`
  </dependencies>`))

	g := NewGraph(NewRepository(t.TempDir(), "", nil), project, nil)
	got, err := g.ResolveDependencies(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"org.lib:lib:2.1:compile",
		"org.managed:managed:9.9:compile",
		"org.self:self:1.0.0:runtime",
		"junit:junit:4.13:test",
		"org.opt:opt:1:compile",
		"org.osgi:feature:1:compile",
	}
	if strings.Join(keys(got), ",") != strings.Join(want, ",") {
		t.Fatalf("deps = %v\nwant %v", keys(got), want)
	}
	for _, d := range got {
		if !d.Direct || d.Source != artifact.SourceBuildDependency {
			t.Errorf("%s: direct=%v source=%s", d, d.Direct, d.Source)
		}
	}
	if !got[4].Optional {
		t.Error("optional flag lost")
	}
	if got[5].Type != "osgi.subsystem.feature" {
		t.Errorf("type = %s", got[5].Type)
	}
}

func TestGraphTransitive(t *testing.T) {
	dir := t.TempDir()
	repo := t.TempDir()

	installPOM(t, repo, "org.a", "a", "1", `<dependencies>
    `+dep("org.b", "b", "1", "")+`
    `+dep("org.c", "c", "1", "<scope>runtime</scope>")+`
    `+dep("org.t", "t", "1", "<scope>test</scope>")+`
    `+dep("org.o", "o", "1", "<optional>true</optional>")+`
    `+dep("org.x", "x", "1", "")+`
  </dependencies>`)
	installPOM(t, repo, "org.b", "b", "1", `<dependencies>`+dep("org.d", "d", "1", "")+`</dependencies>`)
	installPOM(t, repo, "org.c", "c", "1", `<dependencies>`+dep("org.e", "e", "1", "")+`</dependencies>`)
	installPOM(t, repo, "org.p", "p", "1", `<dependencies>`+dep("org.hidden", "hidden", "1", "")+`</dependencies>`)

	project := filepath.Join(dir, "pom.xml")
	testutil.WriteFile(t, project, pom("com.example", "app", "1", `
  <dependencyManagement><dependencies>`+dep("org.d", "d", "2", "")+`</dependencies></dependencyManagement>
  <dependencies>
    <dependency><groupId>org.a</groupId><artifactId>a</artifactId><version>1</version>
      <exclusions><exclusion><groupId>org.x</groupId><artifactId>*</artifactId></exclusion></exclusions>
    </dependency>
    `+dep("org.p", "p", "1", "<scope>provided</scope>")+`
    `+dep("org.b", "b", "1", "")+`
  </dependencies>`))

	g := NewGraph(NewRepository(repo, "", nil), project, nil)
	got, err := g.ResolveDependencies(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"org.a:a:1:compile",
		"org.p:p:1:provided",
		"org.b:b:1:compile",
		"org.c:c:1:runtime",
		"org.d:d:2:compile",
		"org.e:e:1:runtime",
	}
	if strings.Join(keys(got), ",") != strings.Join(want, ",") {
		t.Fatalf("deps = %v\nwant %v", keys(got), want)
	}
	for _, d := range got[3:] {
		if d.Direct {
			t.Errorf("%s should be transitive", d)
		}
	}
}

func TestGraphParentAndBOM(t *testing.T) {
	dir := t.TempDir()
	repo := t.TempDir()

	installPOM(t, repo, "org.bom", "bom", "1", `<dependencyManagement><dependencies>`+
		dep("org.fromBom", "lib", "7", "")+`</dependencies></dependencyManagement>`)

	testutil.WriteFile(t, filepath.Join(dir, "pom.xml"), pom("com.example", "parent", "3.0", `
  <packaging>pom</packaging>
  <properties><shared.version>5</shared.version></properties>
  <dependencyManagement><dependencies>
    `+dep("org.bom", "bom", "1", "<type>pom</type><scope>import</scope>")+`
  </dependencies></dependencyManagement>`))

	module := filepath.Join(dir, "module", "pom.xml")
	testutil.WriteFile(t, module, `<project>
  <parent><groupId>com.example</groupId><artifactId>parent</artifactId><version>3.0</version></parent>
  <artifactId>module</artifactId>
  <dependencies>
    `+dep("org.shared", "shared", "${shared.version}", "")+`
    `+dep("com.example", "sibling", "${project.version}", "")+`
    <dependency><groupId>org.fromBom</groupId><artifactId>lib</artifactId></dependency>
  </dependencies>
</project>`)

	g := NewGraph(NewRepository(repo, "", nil), module, nil)
	got, err := g.ResolveDependencies(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	want := "org.shared:shared:5:compile,com.example:sibling:3.0:compile,org.fromBom:lib:7:compile"
	if strings.Join(keys(got), ",") != want {
		t.Errorf("deps = %v, want %s", keys(got), want)
	}
}

func TestGraphWorkspace(t *testing.T) {
	dir := t.TempDir()
	sibling := filepath.Join(dir, "sibling")
	testutil.WriteFile(t, filepath.Join(sibling, "pom.xml"), pom("com.example", "sibling", "1", ""))
	if err := os.MkdirAll(filepath.Join(sibling, "target", "classes"), 0o755); err != nil {
		t.Fatal(err)
	}

	project := filepath.Join(dir, "app", "pom.xml")
	testutil.WriteFile(t, project, pom("com.example", "app", "1", `<dependencies>`+dep("com.example", "sibling", "1", "")+`</dependencies>`))

	g := NewGraph(NewRepository(t.TempDir(), "", nil), project, nil)
	g.Workspace["com.example:sibling"] = sibling

	got, err := g.ResolveDependencies(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Workspace {
		t.Fatalf("deps = %+v", got)
	}
	if got[0].Origin != filepath.Join(sibling, "target", "classes") {
		t.Errorf("origin = %s", got[0].Origin)
	}

	d, err := g.Lookup(context.Background(), artifact.MustParseCoordinate("com.example:sibling:jar:1"))
	if err != nil || !d.Workspace {
		t.Errorf("Lookup = %+v, %v", d, err)
	}
}

func TestGraphLookup(t *testing.T) {
	repo := t.TempDir()
	d := artifact.MustParseCoordinate("test:anotherBundle:jar:1.0")
	r := NewRepository(repo, "", nil)
	testutil.WriteJar(t, r.Path(d), testutil.Bundle("anotherBundle", "1.0"), nil)

	g := NewGraph(r, filepath.Join(t.TempDir(), "pom.xml"), nil)
	got, err := g.Lookup(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if got.Origin != r.Path(d) || !got.Override {
		t.Errorf("Lookup = %+v", got)
	}

	d.Name = "missing"
	if _, err := g.Lookup(context.Background(), d); !stderrors.Is(err, integrations.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestMissingProjectPOM(t *testing.T) {
	g := NewGraph(NewRepository(t.TempDir(), "", nil), filepath.Join(t.TempDir(), "pom.xml"), nil)
	if _, err := g.ResolveDependencies(context.Background(), false); err == nil {
		t.Fatal("expected error")
	}
}

func TestInterpolate(t *testing.T) {
	props := map[string]string{"a": "1", "b": "${a}.2", "name": "x"}
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"plain", "plain", true},
		{"${a}", "1", true},
		{"${b}", "1.2", true},
		{"${name}-${a}", "x-1", true},
		{"${missing}", "${missing}", false},
		{"${unterminated", "${unterminated", false},
	}
	for _, tt := range tests {
		got, ok := interpolate(tt.in, props)
		if got != tt.want || ok != tt.ok {
			t.Errorf("interpolate(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
