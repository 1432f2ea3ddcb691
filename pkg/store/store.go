// Package store materializes artifacts into the cache directory.
//
// The cache layout is <root>/<category>/<normalized file name>, where the
// category subdirectory is present when grouping by type is enabled and the
// file name comes from a [Template]. Two policies exist:
//
//   - embed: the artifact is copied (or downloaded, or packed from a
//     workspace directory) into the cache and later referenced by a path
//     relative to the repository root.
//   - reference: the artifact stays at its origin and is referenced by
//     absolute path. Remote artifacts are always embedded since they have no
//     stable local origin.
//
// Every write lands in a temporary file in the destination directory and is
// renamed into place once complete. An input whose fingerprint is unchanged
// and whose cached file still exists is carried over without touching it.
package store

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/osgirepo/pkg/archive"
	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/integrations"
	"github.com/matzehuels/osgirepo/pkg/ledger"
	"github.com/matzehuels/osgirepo/pkg/manifest"
	"github.com/matzehuels/osgirepo/pkg/observability"
)

// Status says how an artifact was materialized.
type Status int

const (
	Copied Status = iota
	Downloaded
	Packed
	Referenced
	CarriedOver
)

func (s Status) String() string {
	switch s {
	case Copied:
		return "copied"
	case Downloaded:
		return "downloaded"
	case Packed:
		return "packed"
	case Referenced:
		return "referenced"
	case CarriedOver:
		return "carried over"
	}
	return "unknown"
}

// Result is the outcome of one materialization.
type Result struct {
	Status Status
	Path   string
}

// Store owns the cache directory.
type Store struct {
	Root        string
	Template    Template
	GroupByType bool
	Embed       bool

	// Client downloads remote artifacts. It may be nil when no remote
	// artifacts are expected.
	Client *integrations.Client
	// Ledger gates copies of unchanged inputs. Nil disables skipping.
	Ledger    *ledger.Ledger
	Extractor manifest.Extractor
	Logger    *log.Logger
}

func (s *Store) logger() *log.Logger {
	if s.Logger == nil {
		return log.NewWithOptions(io.Discard, log.Options{})
	}
	return s.Logger
}

func (s *Store) extractor() manifest.Extractor {
	if s.Extractor == nil {
		return manifest.FileExtractor{}
	}
	return s.Extractor
}

// Dir returns the directory artifacts of category c are cached in.
func (s *Store) Dir(c artifact.Category) string {
	if s.GroupByType {
		return filepath.Join(s.Root, string(c))
	}
	return s.Root
}

// FileName returns the normalized cache file name of d. Manifest headers,
// when known, supply the symbolic name and version.
func (s *Store) FileName(d artifact.Descriptor, headers manifest.Headers) string {
	n := Names{
		Name:       d.Name,
		GroupID:    d.GroupID,
		Classifier: d.Classifier,
		Version:    d.Version,
		Extension:  d.Ext(),
	}
	if headers != nil {
		n.SymbolicName = headers.SymbolicName()
		if v := headers.Version(); v != "" {
			n.Version = v
		}
	}
	n.Version = manifest.Canonical(n.Version)
	return s.Template.Format(n)
}

// Materialize makes t's artifact available and records where in t.
func (s *Store) Materialize(ctx context.Context, t *artifact.Tracker) (Result, error) {
	d := t.Descriptor
	if d.Origin == "" {
		return Result{}, errors.New(errors.ErrCodeInternal, "artifact %s has no resolved origin", d)
	}
	remote := integrations.IsRemote(d.Origin)

	var isDir bool
	if !remote {
		info, err := os.Stat(d.Origin)
		if err != nil {
			if os.IsNotExist(err) {
				return Result{}, errors.Wrap(errors.ErrCodeNotFound, err, "artifact %s", d)
			}
			return Result{}, errors.IO(err, "stat", d.Origin, "")
		}
		isDir = info.IsDir()
	}

	if d.Source == artifact.SourceFileset && s.inRoot(d.Origin) {
		t.MarkCached(d.Origin, true)
		return Result{Status: Referenced, Path: d.Origin}, nil
	}
	if !s.Embed && !remote && !isDir && d.Source != artifact.SourceRemoteMetadata {
		t.MarkCached(d.Origin, false)
		return Result{Status: Referenced, Path: d.Origin}, nil
	}

	in := ledger.FileInput(d.Origin)
	if remote {
		in = ledger.URLInput(d.Origin)
	}
	hooks := observability.Cache()
	category := string(t.Category)

	if s.Ledger != nil {
		status, err := s.Ledger.RegisterInput(in)
		if err != nil {
			return Result{}, errors.IO(err, "fingerprint", d.Origin, "")
		}
		if status == ledger.Unmodified && !d.Workspace && s.Ledger.OutputsExist(in.ID) &&
			s.Ledger.Outputs(in.ID)[0] == s.expectedPath(t, s.Ledger.Outputs(in.ID)[0]) {
			dest := s.Ledger.Outputs(in.ID)[0]
			s.Ledger.Done(in.ID)
			t.MarkCached(dest, true)
			hooks.OnCacheHit(ctx, category)
			s.logger().Debug("carried over", "artifact", d, "path", dest)
			return Result{Status: CarriedOver, Path: dest}, nil
		}
	}
	hooks.OnCacheMiss(ctx, category)

	dir := s.Dir(t.Category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, errors.IO(err, "create cache directory", dir, "")
	}

	res, err := s.write(ctx, d, dir, remote, isDir)
	if err != nil {
		return Result{}, err
	}

	if s.Ledger != nil {
		for _, old := range s.Ledger.Outputs(in.ID) {
			if old != res.Path && strings.HasPrefix(old, s.Root) {
				_ = os.Remove(old)
			}
		}
		s.Ledger.AssociateOutput(in.ID, res.Path)
		s.Ledger.Done(in.ID)
	}
	t.MarkCached(res.Path, true)
	if info, err := os.Stat(res.Path); err == nil {
		hooks.OnCacheSet(ctx, category, info.Size())
	}
	s.logger().Debug("cached", "artifact", d, "path", res.Path, "status", res.Status)
	return res, nil
}

// write produces the cached file through a temporary sibling and renames it
// to its normalized name.
func (s *Store) write(ctx context.Context, d artifact.Descriptor, dir string, remote, isDir bool) (Result, error) {
	tmp := filepath.Join(dir, "."+uuid.NewString()+".part."+d.Ext())
	defer os.Remove(tmp)

	var status Status
	switch {
	case remote:
		status = Downloaded
		if s.Client == nil {
			return Result{}, errors.New(errors.ErrCodeInvalidConfig, "no client configured to download %s", d.Origin)
		}
		if err := s.Client.Download(ctx, d.Origin, tmp); err != nil {
			if dest, ok := s.fallback(d, dir); ok {
				s.logger().Warn("download failed, using cached copy", "artifact", d, "err", err)
				return Result{Status: CarriedOver, Path: dest}, nil
			}
			return Result{}, integrations.Classify(err, "download %s", d.Origin)
		}
	case isDir:
		status = Packed
		res, err := archive.PackDir(ctx, d.Origin, tmp)
		if err != nil {
			return Result{}, err
		}
		if res.Empty {
			return Result{}, errors.New(errors.ErrCodeIO, "workspace output %s of %s is empty", d.Origin, d)
		}
	default:
		status = Copied
		if err := copyFile(d.Origin, tmp); err != nil {
			return Result{}, errors.IO(err, "copy", d.Origin, tmp)
		}
	}

	var name string
	if d.Source == artifact.SourceFileset {
		name = filepath.Base(d.Origin)
	} else {
		headers, err := s.extractor().Extract(tmp)
		if err != nil {
			s.logger().Debug("no manifest for naming", "artifact", d, "err", err)
			headers = nil
		}
		name = s.FileName(d, headers)
	}
	if err := errors.ValidateName("cache file name", name); err != nil {
		return Result{}, err
	}
	dest := filepath.Join(dir, name)

	same, err := sameContent(tmp, dest)
	if err != nil {
		return Result{}, errors.IO(err, "compare", tmp, dest)
	}
	if same {
		return Result{Status: CarriedOver, Path: dest}, nil
	}
	if err := os.Rename(tmp, dest); err != nil {
		return Result{}, errors.IO(err, "rename", tmp, dest)
	}
	return Result{Status: status, Path: dest}, nil
}

// expectedPath is where t's artifact belongs under the current template and
// grouping, taking manifest headers from the previously cached copy.
func (s *Store) expectedPath(t *artifact.Tracker, cached string) string {
	d := t.Descriptor
	if d.Source == artifact.SourceFileset {
		return filepath.Join(s.Dir(t.Category), filepath.Base(d.Origin))
	}
	headers, err := s.extractor().Extract(cached)
	if err != nil {
		headers = nil
	}
	return filepath.Join(s.Dir(t.Category), s.FileName(d, headers))
}

// fallback finds a previously cached copy of a remote artifact by its
// descriptor-derived name.
func (s *Store) fallback(d artifact.Descriptor, dir string) (string, bool) {
	dest := filepath.Join(dir, s.FileName(d, nil))
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		return dest, true
	}
	return "", false
}

func (s *Store) inRoot(p string) bool {
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// sameContent reports whether dst exists with the same bytes as src.
func sameContent(src, dst string) (bool, error) {
	di, err := os.Stat(dst)
	if stderrors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	si, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if si.Size() != di.Size() {
		return false, nil
	}
	a, err := ledger.DigestFile(src)
	if err != nil {
		return false, err
	}
	b, err := ledger.DigestFile(dst)
	if err != nil {
		return false, err
	}
	return a == b, nil
}
