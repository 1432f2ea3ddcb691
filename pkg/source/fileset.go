package source

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
)

// FilesetGroupID is the group of every fileset descriptor. Filesets carry no
// coordinates, so identity comes from the relative path.
const FilesetGroupID = "fileset"

// DefaultIncludes and DefaultExcludes apply to filesets that set none.
var (
	DefaultIncludes = []string{"**/*.jar"}
	DefaultExcludes = []string{
		"**/*.properties", "**/*.txt", "**/*.xml",
		"**/.meta", "**/.cache", "**/.locks", "**/*-javadoc*",
	}
)

// FilesetSpec lists directory trees to scan.
type FilesetSpec struct {
	Sets []Fileset
}

// Fileset is one root directory with include and exclude globs. Globs use
// doublestar syntax and are matched against slash-separated relative paths.
type Fileset struct {
	Root     string
	Includes []string
	Excludes []string
}

type filesetResolver struct {
	spec   FilesetSpec
	logger *log.Logger
}

func (r *filesetResolver) Kind() artifact.SourceKind { return artifact.SourceFileset }

func (r *filesetResolver) Resolve(ctx context.Context) ([]artifact.Descriptor, error) {
	var out []artifact.Descriptor
	for _, fs := range r.spec.Sets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := Scan(fs)
		if err != nil {
			return nil, err
		}
		root, _ := filepath.Abs(fs.Root)
		for _, rel := range files {
			ext := strings.TrimPrefix(path.Ext(rel), ".")
			out = append(out, artifact.Descriptor{
				GroupID:   FilesetGroupID,
				Name:      strings.TrimSuffix(rel, path.Ext(rel)),
				Type:      ext,
				Extension: ext,
				Direct:    true,
				Source:    artifact.SourceFileset,
				Origin:    filepath.Join(root, filepath.FromSlash(rel)),
			})
		}
		r.logger.Debug("scanned fileset", "root", fs.Root, "files", len(files))
	}
	return out, nil
}

// Scan returns the sorted, slash-separated paths under fs.Root that match an
// include and no exclude. A file is also excluded when one of its parent
// directories matches an exclude.
func Scan(fs Fileset) ([]string, error) {
	if fs.Root == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "fileset root directory is required")
	}
	info, err := os.Stat(fs.Root)
	if err != nil || !info.IsDir() {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "fileset root %s is not a directory", fs.Root)
	}
	includes, excludes := fs.Includes, fs.Excludes
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	if excludes == nil {
		excludes = DefaultExcludes
	}
	for _, p := range slices.Concat(includes, excludes) {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "invalid glob %q in fileset %s", p, fs.Root)
		}
	}

	fsys := os.DirFS(fs.Root)
	seen := make(map[string]bool)
	var out []string
	for _, inc := range includes {
		matches, err := doublestar.Glob(fsys, inc, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIO, err, "scan %s", fs.Root)
		}
		for _, m := range matches {
			if seen[m] || excluded(excludes, m) {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out, nil
}

func excluded(patterns []string, rel string) bool {
	for p := rel; p != "." && p != ""; p = path.Dir(p) {
		for _, pat := range patterns {
			if ok, _ := doublestar.Match(pat, p); ok {
				return true
			}
		}
	}
	return false
}
