package integrations

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/osgirepo/pkg/errors"
	"github.com/matzehuels/osgirepo/pkg/httputil"
)

// DefaultTimeout bounds a single request including reading the body.
const DefaultTimeout = 60 * time.Second

var (
	// ErrNotFound is returned when a remote resource doesn't exist.
	ErrNotFound = stderrors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (connection errors, 5xx responses).
	ErrNetwork = stderrors.New("network error")

	// ErrTimeout is returned when a request exceeds its deadline.
	ErrTimeout = stderrors.New("request timed out")

	// ErrOffline is returned when a remote resource is needed in offline mode.
	ErrOffline = stderrors.New("offline mode")
)

// NewHTTPClient creates an HTTP client with the given timeout.
// A zero timeout selects [DefaultTimeout].
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewCache creates a metadata cache with the given TTL in dir.
// See [httputil.NewCache] for details on cache location and behavior.
func NewCache(dir string, ttl time.Duration) (*httputil.Cache, error) {
	return httputil.NewCache(dir, ttl)
}

// Classify converts a client failure into a coded error carrying what was
// being attempted.
func Classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case stderrors.Is(err, ErrOffline):
		return errors.Wrap(errors.ErrCodeOffline, err, "%s", msg)
	case stderrors.Is(err, ErrTimeout):
		return errors.Wrap(errors.ErrCodeTimeout, err, "%s", msg)
	case stderrors.Is(err, ErrNotFound):
		return errors.Wrap(errors.ErrCodeNotFound, err, "%s", msg)
	case stderrors.Is(err, ErrNetwork):
		return errors.Wrap(errors.ErrCodeNetwork, err, "%s", msg)
	case stderrors.Is(err, context.Canceled):
		return err
	}
	if errors.GetCode(err) != "" {
		return err
	}
	return errors.Wrap(errors.ErrCodeIO, err, "%s", msg)
}

// transportError maps an http.Client error onto the sentinels.
func transportError(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
}

// IsRemote reports whether rawURL uses http or https.
func IsRemote(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// IsFileURL reports whether rawURL uses the file scheme.
func IsFileURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "file:")
}

// FilePath converts a file: URL to a local path.
func FilePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid URL %q", rawURL)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	return filepath.FromSlash(p), nil
}

// JoinURL joins base and a relative path with exactly one slash.
func JoinURL(base, rel string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "/")
}
