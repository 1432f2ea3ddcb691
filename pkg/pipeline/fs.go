package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/osgirepo/pkg/errors"
)

// copyAtomic copies src to dst through a temporary sibling so readers never
// see a partial file.
func copyAtomic(src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.IO(err, "create directory", filepath.Dir(dst), "")
	}
	in, err := os.Open(src)
	if err != nil {
		return errors.IO(err, "open", src, "")
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.IO(err, "create", tmp, "")
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return errors.IO(err, "copy", src, dst)
	}
	if err = out.Close(); err != nil {
		return errors.IO(err, "copy", src, dst)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return errors.IO(err, "rename", tmp, dst)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
