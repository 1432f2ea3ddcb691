package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/osgirepo/pkg/errors"
)

// Extractor reads manifest headers from an artifact file.
type Extractor interface {
	Extract(path string) (Headers, error)
}

// FileExtractor reads headers from jar and esa archives and from exploded
// bundle directories.
type FileExtractor struct{}

// Extract returns the headers of the artifact at path. An archive without a
// manifest yields empty headers, which fail validation.
func (FileExtractor) Extract(path string) (Headers, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.IO(err, "stat", path, "")
	}
	if info.IsDir() {
		f, err := os.Open(filepath.Join(path, filepath.FromSlash(BundleManifestPath)))
		if os.IsNotExist(err) {
			return Headers{}, nil
		}
		if err != nil {
			return nil, errors.IO(err, "read manifest of", path, "")
		}
		defer f.Close()
		return Parse(f)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "open archive %s", path)
	}
	defer zr.Close()

	want := BundleManifestPath
	if strings.EqualFold(filepath.Ext(path), ".esa") {
		want = SubsystemManifestPath
	}
	for _, f := range zr.File {
		if !strings.EqualFold(f.Name, want) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "open %s in %s", want, path)
		}
		defer rc.Close()
		return Parse(rc)
	}
	return Headers{}, nil
}

type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// CachingExtractor memoizes another extractor, keyed by path, size and
// modification time so a rewritten file is read again.
type CachingExtractor struct {
	inner Extractor
	cache *lru.Cache[cacheKey, Headers]
}

// NewCachingExtractor wraps inner with an LRU of the given size.
func NewCachingExtractor(inner Extractor, size int) (*CachingExtractor, error) {
	if inner == nil {
		inner = FileExtractor{}
	}
	c, err := lru.New[cacheKey, Headers](size)
	if err != nil {
		return nil, err
	}
	return &CachingExtractor{inner: inner, cache: c}, nil
}

// Extract returns cached headers when the file is unchanged.
func (c *CachingExtractor) Extract(path string) (Headers, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.IO(err, "stat", path, "")
	}
	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if h, ok := c.cache.Get(key); ok {
		return h, nil
	}
	h, err := c.inner.Extract(path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, h)
	return h, nil
}
