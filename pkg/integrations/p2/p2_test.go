package p2

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/osgirepo/internal/testutil"
	"github.com/matzehuels/osgirepo/pkg/httputil"
	"github.com/matzehuels/osgirepo/pkg/integrations"
)

const artifactsXML = `<?xml version='1.0' encoding='UTF-8'?>
<?artifactRepository version='1.1.0'?>
<repository name='test' type='org.eclipse.equinox.p2.artifact.repository.simpleRepository' version='1'>
  <mappings size='3'>
    <rule filter='(&amp; (classifier=osgi.bundle) (format=packed))' output='${repoUrl}/plugins/${id}_${version}.jar.pack.gz'/>
    <rule filter='(&amp; (classifier=osgi.bundle))' output='${repoUrl}/bundles/${id}_${version}.jar'/>
    <rule filter='(&amp; (classifier=org.eclipse.update.feature))' output='${repoUrl}/features/${id}_${version}.jar'/>
  </mappings>
  <artifacts size='5'>
    <artifact classifier='osgi.bundle' id='org.example.core' version='1.0.0.v2024'>
      <properties size='1'><property name='download.size' value='1234'/></properties>
    </artifact>
    <artifact classifier='osgi.bundle' id='org.example.core' version='1.2.0'/>
    <artifact classifier='osgi.bundle' id='org.example.core' version='1.2.0'>
      <properties size='1'><property name='format' value='packed'/></properties>
    </artifact>
    <artifact classifier='osgi.bundle' id='org.example.util' version='2.0'/>
    <artifact classifier='org.eclipse.update.feature' id='org.example.feature' version='1.0.0'/>
  </artifacts>
</repository>`

const compositeXML = `<?xml version='1.0' encoding='UTF-8'?>
<?compositeArtifactRepository version='1.0.0'?>
<repository name='composite' type='org.eclipse.equinox.internal.p2.artifact.repository.CompositeArtifactRepository' version='1.0.0'>
  <children size='2'>
    <child location='child'/>
    <child location='../other'/>
  </children>
</repository>`

const plainXML = `<repository><artifacts>
  <artifact classifier='osgi.bundle' id='org.other' version='3.0.0'/>
</artifacts></repository>`

func TestMatchFilter(t *testing.T) {
	attrs := map[string]string{"classifier": "osgi.bundle", "id": "org.example.core", "format": ""}
	tests := []struct {
		filter string
		want   bool
	}{
		{"(classifier=osgi.bundle)", true},
		{"(& (classifier=osgi.bundle))", true},
		{"(& (classifier=osgi.bundle) (format=packed))", false},
		{"(| (classifier=binary) (classifier=osgi.bundle))", true},
		{"(!(classifier=binary))", true},
		{"(id=org.example.*)", true},
		{"(id=*)", true},
		{"(missing=*)", false},
		{"(classifier=osgi.bundle", false},
		{"classifier=osgi.bundle", false},
	}
	for _, tt := range tests {
		if got := matchFilter(tt.filter, attrs); got != tt.want {
			t.Errorf("matchFilter(%q) = %v, want %v", tt.filter, got, tt.want)
		}
	}
}

func TestParseArtifacts(t *testing.T) {
	repo, err := parseArtifacts(strings.NewReader(artifactsXML), "https://repo.example/p2/")
	if err != nil {
		t.Fatal(err)
	}
	if len(repo.Units) != 3 {
		t.Fatalf("units = %+v", repo.Units)
	}
	u := repo.Units[0]
	if u.Location != "https://repo.example/p2/bundles/org.example.core_1.0.0.v2024.jar" || u.Size != 1234 {
		t.Errorf("unit = %+v", u)
	}
}

func TestDefaultRule(t *testing.T) {
	repo, err := parseArtifacts(strings.NewReader(plainXML), "https://repo.example/p2")
	if err != nil {
		t.Fatal(err)
	}
	if got := repo.Units[0].Location; got != "https://repo.example/p2/plugins/org.other_3.0.0.jar" {
		t.Errorf("location = %s", got)
	}
}

func TestResolveChild(t *testing.T) {
	tests := []struct{ parent, child, want string }{
		{"https://h/r", "child", "https://h/r/child"},
		{"https://h/r/", "../other", "https://h/other"},
		{"https://h/r", "https://elsewhere/x/", "https://elsewhere/x"},
		{"file:///srv/r", "c", "file:///srv/r/c"},
	}
	for _, tt := range tests {
		if got := resolveChild(tt.parent, tt.child); got != tt.want {
			t.Errorf("resolveChild(%q, %q) = %q, want %q", tt.parent, tt.child, got, tt.want)
		}
	}
}

func jarBytes(t *testing.T, entry, content string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.jar")
	testutil.WriteZip(t, path, map[string]string{entry: content})
	return testutil.ReadFile(t, path)
}

func newServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	hits := new(int)
	childJar := jarBytes(t, "artifacts.xml", artifactsXML)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		switch r.URL.Path {
		case "/composite/compositeArtifacts.xml":
			_, _ = w.Write([]byte(compositeXML))
		case "/composite/child/artifacts.jar":
			_, _ = w.Write(childJar)
		case "/other/artifacts.xml":
			_, _ = w.Write([]byte(plainXML))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func TestListUnitsComposite(t *testing.T) {
	server, _ := newServer(t)
	c := NewClient(integrations.NewClient(nil, integrations.Options{}), "", nil)

	units, err := c.ListUnits(context.Background(), server.URL+"/composite", []string{
		"org.example.core:1.0.0.v2024",
		"org.example.core",
		"org.example.util:2.0.0",
		"org.other:3.0",
		"org.absent:1.0.0",
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, u := range units {
		got = append(got, u.Coordinate())
	}
	want := "org.example.core:1.0.0.v2024,org.example.core:1.2.0,org.example.util:2.0,org.other:3.0.0"
	if strings.Join(got, ",") != want {
		t.Errorf("units = %v, want %s", got, want)
	}
	if units[3].Location != server.URL+"/other/plugins/org.other_3.0.0.jar" {
		t.Errorf("location = %s", units[3].Location)
	}
}

func TestListUnitsMissingRepository(t *testing.T) {
	server, _ := newServer(t)
	c := NewClient(integrations.NewClient(nil, integrations.Options{}), "", nil)
	_, err := c.ListUnits(context.Background(), server.URL+"/nothing", []string{"a"})
	if !stderrors.Is(err, integrations.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListUnitsOfflineFromCache(t *testing.T) {
	server, hits := newServer(t)
	cache, err := httputil.NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	online := NewClient(integrations.NewClient(cache, integrations.Options{}), "", nil)
	if _, err := online.ListUnits(ctx, server.URL+"/composite", []string{"org.other"}); err != nil {
		t.Fatal(err)
	}
	before := *hits

	offline := NewClient(integrations.NewClient(cache, integrations.Options{Offline: true}), "", nil)
	units, err := offline.ListUnits(ctx, server.URL+"/composite", []string{"org.other"})
	if err != nil || len(units) != 1 {
		t.Fatalf("offline = %v, %v", units, err)
	}
	if *hits != before {
		t.Errorf("offline run made %d requests", *hits-before)
	}

	cold := NewClient(integrations.NewClient(nil, integrations.Options{Offline: true}), "", nil)
	if _, err := cold.ListUnits(ctx, server.URL+"/composite", nil); !stderrors.Is(err, integrations.ErrOffline) {
		t.Errorf("cold offline err = %v", err)
	}
}

func TestListUnitsLocalAndPool(t *testing.T) {
	repoDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(repoDir, "artifacts.xml"), artifactsXML)

	pool := t.TempDir()
	poolJar := filepath.Join(pool, "plugins", "org.example.util_2.0.jar")
	testutil.WriteJar(t, poolJar, testutil.Bundle("org.example.util", "2.0"), nil)

	c := NewClient(integrations.NewClient(nil, integrations.Options{Offline: true}), pool, nil)
	units, err := c.ListUnits(context.Background(), repoDir, []string{"org.example.core:1.2", "org.example.util"})
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 {
		t.Fatalf("units = %+v", units)
	}
	if want := filepath.Join(repoDir, "bundles", "org.example.core_1.2.0.jar"); units[0].Location != want {
		t.Errorf("local location = %s, want %s", units[0].Location, want)
	}
	if units[1].Location != poolJar {
		t.Errorf("pool location = %s, want %s", units[1].Location, poolJar)
	}
}
