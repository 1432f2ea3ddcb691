package p2

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/integrations"
	"github.com/matzehuels/osgirepo/pkg/manifest"
)

// maxCompositeDepth bounds nested composite repositories.
const maxCompositeDepth = 8

// Client lists units of p2 repositories.
//
// All methods are safe for concurrent use.
type Client struct {
	*integrations.Client

	// Pool is an optional local directory laid out like a p2 bundle pool.
	Pool string

	logger *log.Logger
}

// NewClient creates a p2 client on top of c.
func NewClient(c *integrations.Client, pool string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Client{Client: c, Pool: pool, logger: logger}
}

// ListUnits returns the units of the repository at location that match
// wanted. Entries of wanted are "id:version" or a bare "id", which selects
// the highest version available. Versions compare in canonical OSGi form, so
// "1.0" matches "1.0.0".
//
// Wanted units absent from the repository are not an error; callers compare
// the result against what they asked for.
func (c *Client) ListUnits(ctx context.Context, location string, wanted []string) ([]Unit, error) {
	all, err := c.Units(ctx, location, false)
	if err != nil {
		return nil, err
	}

	var out []Unit
	for _, w := range wanted {
		id, version, _ := strings.Cut(strings.TrimSpace(w), ":")
		u, ok := pick(all, id, version)
		if !ok {
			continue
		}
		out = append(out, c.fromPool(u))
	}
	return out, nil
}

// Units returns every osgi.bundle artifact reachable from location, following
// composite children.
func (c *Client) Units(ctx context.Context, location string, refresh bool) ([]Unit, error) {
	var units []Unit
	visited := make(map[string]bool)
	var walk func(loc string, depth int) error
	walk = func(loc string, depth int) error {
		if visited[loc] {
			return nil
		}
		visited[loc] = true
		if depth > maxCompositeDepth {
			return errors.New(errors.ErrCodeInvalidConfig, "p2 composite nesting under %s is too deep", location)
		}
		repo, err := c.repository(ctx, loc, refresh)
		if err != nil {
			return err
		}
		units = append(units, repo.Units...)
		for _, child := range repo.Children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(normalizeLocation(location), 0); err != nil {
		return nil, err
	}
	return units, nil
}

func (c *Client) repository(ctx context.Context, location string, refresh bool) (*repository, error) {
	if integrations.IsFileURL(location) {
		return c.fetchRepository(ctx, location)
	}
	var repo repository
	err := c.Cached(ctx, "repository:"+location, refresh, &repo, func() error {
		r, err := c.fetchRepository(ctx, location)
		if err != nil {
			return err
		}
		repo = *r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// fetchRepository tries the four metadata files in the order p2 does.
func (c *Client) fetchRepository(ctx context.Context, location string) (*repository, error) {
	candidates := []struct {
		file  string
		entry string
		parse func(io.Reader, string) (*repository, error)
	}{
		{"artifacts.jar", "artifacts.xml", parseArtifacts},
		{"artifacts.xml", "", parseArtifacts},
		{"compositeArtifacts.jar", "compositeArtifacts.xml", parseComposite},
		{"compositeArtifacts.xml", "", parseComposite},
	}
	for _, cand := range candidates {
		data, err := c.Fetch(ctx, integrations.JoinURL(location, cand.file))
		if stderrors.Is(err, integrations.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if cand.entry != "" {
			if data, err = unzipEntry(data, cand.entry); err != nil {
				return nil, fmt.Errorf("read %s/%s: %w", location, cand.file, err)
			}
		}
		repo, err := cand.parse(bytes.NewReader(data), location)
		if err != nil {
			return nil, fmt.Errorf("parse %s/%s: %w", location, cand.file, err)
		}
		c.logger.Debug("read p2 metadata", "location", location, "file", cand.file, "units", len(repo.Units), "children", len(repo.Children))
		return repo, nil
	}
	return nil, fmt.Errorf("%w: no p2 artifact metadata at %s", integrations.ErrNotFound, location)
}

// fromPool rewrites u to the pool copy if there is one, and file: URLs to
// local paths.
func (c *Client) fromPool(u Unit) Unit {
	if c.Pool != "" {
		p := filepath.Join(c.Pool, "plugins", u.ID+"_"+u.Version+".jar")
		if _, err := os.Stat(p); err == nil {
			c.logger.Debug("using pool copy", "unit", u.Coordinate(), "path", p)
			u.Location = p
			return u
		}
	}
	if integrations.IsFileURL(u.Location) {
		if p, err := integrations.FilePath(u.Location); err == nil {
			u.Location = p
		}
	}
	return u
}

// pick finds id in units. An empty version selects the highest one.
func pick(units []Unit, id, version string) (Unit, bool) {
	var best Unit
	found := false
	want := manifest.Canonical(version)
	for _, u := range units {
		if u.ID != id {
			continue
		}
		if version != "" {
			if manifest.Canonical(u.Version) == want {
				return u, true
			}
			continue
		}
		if !found || compareVersions(u.Version, best.Version) > 0 {
			best, found = u, true
		}
	}
	return best, found
}

func compareVersions(a, b string) int {
	va, errA := manifest.ParseVersion(a)
	vb, errB := manifest.ParseVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}

// normalizeLocation turns a plain directory path into a file: URL.
func normalizeLocation(location string) string {
	location = strings.TrimRight(location, "/")
	if strings.Contains(location, "://") || integrations.IsFileURL(location) {
		return location
	}
	if abs, err := filepath.Abs(location); err == nil {
		location = abs
	}
	return "file://" + filepath.ToSlash(location)
}
