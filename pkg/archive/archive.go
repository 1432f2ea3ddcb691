// Package archive writes deterministic zip archives.
//
// [Pack] bundles a repository working directory into its distributable
// archive; [PackDir] turns an exploded bundle directory into a jar. Entries
// are written in path order with a fixed timestamp, so identical input trees
// produce byte-identical archives. Output goes to a temporary file next to
// the destination and is renamed into place once complete.
package archive

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/osgirepo/pkg/errors"
)

// epoch is the timestamp of every entry, the earliest a zip can represent.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

const manifestEntry = "META-INF/MANIFEST.MF"

// Result describes a written archive.
type Result struct {
	Path  string
	Files int
	Bytes int64
	// Empty is set when there was nothing to pack; no file is written then.
	Empty bool
}

// Pack writes every regular file under root into the zip at out, keeping
// relative paths. out itself is skipped if it lies inside root. An empty root
// produces no archive and a Result with Empty set.
func Pack(ctx context.Context, root, out string) (Result, error) {
	files, err := Files(root, out)
	if err != nil {
		return Result{}, err
	}
	return write(ctx, root, files, out)
}

// PackDir writes the exploded bundle at dir as a jar at out. The manifest, if
// any, is the first entry as jar readers expect.
func PackDir(ctx context.Context, dir, out string) (Result, error) {
	files, err := Files(dir, out)
	if err != nil {
		return Result{}, err
	}
	if i := slices.Index(files, manifestEntry); i > 0 {
		files = slices.Insert(slices.Delete(files, i, i+1), 0, manifestEntry)
	}
	return write(ctx, dir, files, out)
}

// Files lists the regular files under root as sorted slash-separated
// relative paths, leaving out the given paths and their temporary siblings.
func Files(root string, exclude ...string) ([]string, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IO(err, "stat", root, "")
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "%s is not a directory", root)
	}

	skip := make(map[string]bool, len(exclude))
	var tmpPrefixes []string
	for _, e := range exclude {
		abs, _ := filepath.Abs(e)
		skip[abs] = true
		tmpPrefixes = append(tmpPrefixes, "."+filepath.Base(e)+".")
	}

	var out []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(p); skip[abs] {
			return nil
		}
		for _, prefix := range tmpPrefixes {
			if strings.HasPrefix(d.Name(), prefix) {
				return nil
			}
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.IO(err, "walk", root, "")
	}
	slices.Sort(out)
	return out, nil
}

func write(ctx context.Context, root string, files []string, out string) (res Result, err error) {
	res.Path = out
	if len(files) == 0 {
		res.Empty = true
		return res, nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return res, errors.IO(err, "create directory for", out, "")
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*.tmp")
	if err != nil {
		return res, errors.IO(err, "create", out, "")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := addFile(zw, filepath.Join(root, filepath.FromSlash(rel)), rel)
		if err != nil {
			return res, errors.IO(err, "archive", rel, out)
		}
		res.Files++
		res.Bytes += n
	}
	if err := zw.Close(); err != nil {
		return res, errors.IO(err, "finish", out, "")
	}
	if err := tmp.Sync(); err != nil {
		return res, errors.IO(err, "sync", out, "")
	}
	if err := tmp.Close(); err != nil {
		return res, errors.IO(err, "close", out, "")
	}
	if err := os.Rename(tmpName, out); err != nil {
		return res, errors.IO(err, "rename", tmpName, out)
	}
	return res, nil
}

func addFile(zw *zip.Writer, src, name string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: epoch}
	hdr.SetMode(0o644)
	switch strings.ToLower(path.Ext(name)) {
	case ".jar", ".esa", ".zip", ".gz":
		hdr.Method = zip.Store
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, err
	}
	return io.Copy(w, f)
}
