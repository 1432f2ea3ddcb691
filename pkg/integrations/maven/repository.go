package maven

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/matzehuels/osgirepo/pkg/artifact"
	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/integrations"
)

// Repository is a local Maven repository optionally backed by a remote one.
//
// All methods are safe for concurrent use.
type Repository struct {
	LocalDir  string
	RemoteURL string

	client *integrations.Client
}

// NewRepository creates a Repository. client may be nil, in which case
// missing artifacts are never downloaded.
func NewRepository(localDir, remoteURL string, client *integrations.Client) *Repository {
	return &Repository{LocalDir: localDir, RemoteURL: remoteURL, client: client}
}

// RelPath returns the slash-separated repository path of d.
func RelPath(d artifact.Descriptor) string {
	file := d.Name + "-" + d.Version
	if d.Classifier != "" {
		file += "-" + d.Classifier
	}
	return path.Join(strings.ReplaceAll(d.GroupID, ".", "/"), d.Name, d.Version, file+"."+d.Ext())
}

// Path returns where d lives in the local repository. The file may not exist.
func (r *Repository) Path(d artifact.Descriptor) string {
	return filepath.Join(r.LocalDir, filepath.FromSlash(RelPath(d)))
}

// Fetch returns the local path of d, downloading it from the remote
// repository first if it is missing.
//
// Returns [integrations.ErrNotFound] when neither repository has it and
// [integrations.ErrOffline] when a download would be required in offline mode.
func (r *Repository) Fetch(ctx context.Context, d artifact.Descriptor) (string, error) {
	if d.GroupID == "" || d.Name == "" || d.Version == "" {
		return "", errors.New(errors.ErrCodeInvalidConfig, "incomplete maven coordinate %s", d)
	}
	p := r.Path(d)
	if _, err := os.Stat(p); err == nil {
		return p, nil
	} else if !os.IsNotExist(err) {
		return "", errors.IO(err, "stat", p, "")
	}

	if r.RemoteURL == "" || r.client == nil {
		return "", fmt.Errorf("%w: %s in %s", integrations.ErrNotFound, d, r.LocalDir)
	}
	if r.client.Offline() {
		return "", fmt.Errorf("%w: %s is not in the local repository", integrations.ErrOffline, d)
	}
	if err := r.client.Download(ctx, integrations.JoinURL(r.RemoteURL, RelPath(d)), p); err != nil {
		return "", err
	}
	return p, nil
}

func pomDescriptor(groupID, artifactID, version string) artifact.Descriptor {
	return artifact.Descriptor{GroupID: groupID, Name: artifactID, Version: version, Type: "pom"}
}
