// Package testutil builds jar and esa fixtures for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Bundle returns headers for a minimal valid bundle.
func Bundle(symbolicName, version string) map[string]string {
	return map[string]string{
		"Manifest-Version":       "1.0",
		"Bundle-ManifestVersion": "2",
		"Bundle-SymbolicName":    symbolicName,
		"Bundle-Version":         version,
	}
}

// Subsystem returns headers for a minimal valid subsystem.
func Subsystem(symbolicName, version, typ string) map[string]string {
	return map[string]string{
		"Subsystem-ManifestVersion": "1",
		"Subsystem-SymbolicName":    symbolicName,
		"Subsystem-Version":         version,
		"Subsystem-Type":            typ,
	}
}

// Manifest renders headers in manifest syntax with sorted keys.
// Manifest-Version is written first when present.
func Manifest(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		if k != "Manifest-Version" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	if v, ok := headers["Manifest-Version"]; ok {
		fmt.Fprintf(&b, "Manifest-Version: %s\r\n", v)
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")
	return b.String()
}

// WriteJar writes a jar at path with the given manifest headers and extra
// entries. A nil headers map writes no manifest at all.
func WriteJar(t testing.TB, path string, headers map[string]string, extra map[string]string) {
	t.Helper()
	entries := map[string]string{}
	if headers != nil {
		entries["META-INF/MANIFEST.MF"] = Manifest(headers)
	}
	for k, v := range extra {
		entries[k] = v
	}
	WriteZip(t, path, entries)
}

// WriteESA writes a subsystem archive at path.
func WriteESA(t testing.TB, path string, headers map[string]string) {
	t.Helper()
	WriteZip(t, path, map[string]string{"OSGI-INF/SUBSYSTEM.MF": Manifest(headers)})
}

// WriteZip writes a zip archive with the given entries in name order.
func WriteZip(t testing.TB, path string, entries map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entries[n])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
