// Package index assembles the OSGi R5 repository index.
//
// The assembler's job is to compute, for every valid tracker, the location
// string the index advertises, and to hand the resulting entries to an
// [Indexer] that serializes the markup. The location policy is:
//
//   - embedded artifacts, unless absolute paths are forced, are referenced
//     relative to the directory holding the index file;
//   - otherwise a base URL, when set, is joined with the path relative to the
//     repository root;
//   - otherwise remote artifacts keep their URL and local ones use their
//     absolute path.
//
// An empty entry set writes no file and is not an error.
package index

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/integrations"
	"github.com/matzehuels/osgirepo/pkg/manifest"
)

// Namespace is the XML namespace of repository index documents.
const Namespace = "http://www.osgi.org/xmlns/repository/v1.0.0"

// Defaults for the index document.
const (
	DefaultFileName = "index.xml"
	DefaultName     = "An OSGi Repository"
)

// Options configure index generation.
type Options struct {
	// Root is the repository root that base URLs are relative to. It
	// defaults to the index directory.
	Root string

	Pretty            bool
	Compressed        bool
	ForceAbsolutePath bool
	BaseURL           string

	// Increment is the repository increment attribute, usually a timestamp
	// fixed once per run.
	Increment int64
	Name      string

	// LicenseURL is advertised for resources whose manifest declares no
	// Bundle-License.
	LicenseURL string

	// URLTemplate rewrites computed locations. Placeholders: %s symbolic
	// name, %v version, %f file name, %p directory with trailing slash,
	// %% a literal percent sign.
	URLTemplate string
}

// FileName appends .gz to name when compressed and it is not already there.
func FileName(name string, compressed bool) string {
	if name == "" {
		name = DefaultFileName
	}
	if compressed && !strings.HasSuffix(name, ".gz") {
		return name + ".gz"
	}
	return name
}

// Entry is one resource handed to an Indexer.
type Entry struct {
	// Path is the local file to read.
	Path string
	// URL is the location advertised in the osgi.content capability.
	URL      string
	Category artifact.Category
	Headers  manifest.Headers
}

// Indexer serializes entries into an index document.
type Indexer interface {
	Index(ctx context.Context, entries []Entry, w io.Writer, opts Options) error
}

// Location computes the advertised location of t for an index written into
// indexDir.
func Location(t *artifact.Tracker, indexDir string, opts Options) (string, error) {
	path := t.CachedPath
	if path == "" {
		return "", errors.New(errors.ErrCodeInternal, "artifact %s was not cached", t.Descriptor)
	}
	var loc string
	switch {
	case integrations.IsRemote(path):
		loc = path
	case t.Embedded && !opts.ForceAbsolutePath:
		rel, err := relPath(indexDir, path)
		if err != nil {
			return "", err
		}
		loc = rel
	case opts.BaseURL != "":
		root := opts.Root
		if root == "" {
			root = indexDir
		}
		rel, err := relPath(root, path)
		if err != nil || strings.HasPrefix(rel, "../") {
			rel = filepath.Base(path)
		}
		loc = integrations.JoinURL(opts.BaseURL, rel)
	default:
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "absolute path of %s", path)
		}
		loc = filepath.ToSlash(abs)
	}
	if opts.URLTemplate != "" {
		loc = expandURL(opts.URLTemplate, loc, t)
	}
	return loc, nil
}

func relPath(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "absolute path of %s", base)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "absolute path of %s", target)
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "relative path of %s", target)
	}
	return filepath.ToSlash(rel), nil
}

func expandURL(tmpl, loc string, t *artifact.Tracker) string {
	dir, file := "", loc
	if i := strings.LastIndexByte(loc, '/'); i >= 0 {
		dir, file = loc[:i+1], loc[i+1:]
	}
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' || i+1 == len(tmpl) {
			b.WriteByte(tmpl[i])
			continue
		}
		i++
		switch tmpl[i] {
		case 's':
			b.WriteString(t.SymbolicName())
		case 'v':
			b.WriteString(manifest.Canonical(t.BundleVersion()))
		case 'f':
			b.WriteString(file)
		case 'p':
			b.WriteString(dir)
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(tmpl[i])
		}
	}
	return b.String()
}

// Entries converts the indexable trackers into entries ordered by location.
func Entries(trackers []*artifact.Tracker, indexDir string, opts Options) ([]Entry, error) {
	var out []Entry
	for _, t := range trackers {
		if !t.Indexable() {
			continue
		}
		loc, err := Location(t, indexDir, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Path: t.CachedPath, URL: loc, Category: t.Category, Headers: t.Headers})
	}
	sortEntries(out)
	return out, nil
}

// Write generates the index file at path from trackers. It reports whether a
// file was written; no file is written when nothing is indexable.
func Write(ctx context.Context, path string, trackers []*artifact.Tracker, opts Options, idx Indexer) (bool, error) {
	if idx == nil {
		idx = &XMLIndexer{}
	}
	dir := filepath.Dir(path)
	entries, err := Entries(trackers, dir, opts)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, errors.IO(err, "create index directory", dir, "")
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return false, errors.IO(err, "create", tmp, "")
	}
	defer os.Remove(tmp)

	if err := encode(ctx, f, entries, opts, idx); err != nil {
		f.Close()
		return false, err
	}
	if err := f.Close(); err != nil {
		return false, errors.IO(err, "write", tmp, "")
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, errors.IO(err, "rename", tmp, path)
	}
	return true, nil
}

func encode(ctx context.Context, w io.Writer, entries []Entry, opts Options, idx Indexer) error {
	if !opts.Compressed {
		return idx.Index(ctx, entries, w, opts)
	}
	zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "gzip writer")
	}
	if err := idx.Index(ctx, entries, zw, opts); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "compress index")
	}
	return nil
}
