package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/osgirepo/internal/testutil"
)

func entries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestPack(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "index.xml"), "<repository/>")
	testutil.WriteJar(t, filepath.Join(root, "plugins", "a_1.0.0.jar"), testutil.Bundle("a", "1.0.0"), nil)
	testutil.WriteFile(t, filepath.Join(root, "subsystems", "f_1.0.0.esa"), "esa")

	out := filepath.Join(t.TempDir(), "repo.zip")
	res, err := Pack(context.Background(), root, out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Empty || res.Files != 3 || res.Path != out {
		t.Errorf("result = %+v", res)
	}
	want := "index.xml,plugins/a_1.0.0.jar,subsystems/f_1.0.0.esa"
	if got := strings.Join(entries(t, out), ","); got != want {
		t.Errorf("entries = %s, want %s", got, want)
	}
}

func TestPackDeterministic(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "b.txt"), "b")
	testutil.WriteFile(t, filepath.Join(root, "a", "c.txt"), "c")

	dir := t.TempDir()
	first := filepath.Join(dir, "first.zip")
	second := filepath.Join(dir, "second.zip")
	if _, err := Pack(context.Background(), root, first); err != nil {
		t.Fatal(err)
	}
	// Touch the inputs; timestamps must not leak into the archive.
	later := time.Now().Add(time.Hour)
	_ = os.Chtimes(filepath.Join(root, "b.txt"), later, later)
	if _, err := Pack(context.Background(), root, second); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(testutil.ReadFile(t, first), testutil.ReadFile(t, second)) {
		t.Error("archives differ")
	}
}

func TestPackEmpty(t *testing.T) {
	out := filepath.Join(t.TempDir(), "repo.zip")
	for _, root := range []string{t.TempDir(), filepath.Join(t.TempDir(), "missing")} {
		res, err := Pack(context.Background(), root, out)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Empty {
			t.Errorf("%s: expected empty result", root)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Errorf("%s: archive must not be written", root)
		}
	}
}

func TestPackSkipsOutputInsideRoot(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "a.txt"), "a")
	out := filepath.Join(root, "repo.zip")
	if _, err := Pack(context.Background(), root, out); err != nil {
		t.Fatal(err)
	}
	if _, err := Pack(context.Background(), root, out); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(entries(t, out), ","); got != "a.txt" {
		t.Errorf("entries = %s", got)
	}
}

func TestPackDir(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "META-INF", "MANIFEST.MF"), testutil.Manifest(testutil.Bundle("ws", "1.0")))
	testutil.WriteFile(t, filepath.Join(dir, "A.class"), "class")
	testutil.WriteFile(t, filepath.Join(dir, "org", "B.class"), "class")

	out := filepath.Join(t.TempDir(), "ws.jar")
	res, err := PackDir(context.Background(), dir, out)
	if err != nil {
		t.Fatal(err)
	}
	names := entries(t, out)
	if res.Files != 3 || names[0] != "META-INF/MANIFEST.MF" {
		t.Errorf("entries = %v", names)
	}
}

func TestPackCancelled(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "a.txt"), "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "repo.zip")
	if _, err := Pack(ctx, root, out); err == nil {
		t.Fatal("expected error")
	}
	left, _ := os.ReadDir(filepath.Dir(out))
	if len(left) != 0 {
		t.Errorf("temporary files left: %d", len(left))
	}
}
