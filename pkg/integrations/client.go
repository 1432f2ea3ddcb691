package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/httputil"
	"github.com/matzehuels/osgirepo/pkg/observability"
)

// Options configures a [Client].
type Options struct {
	// Timeout bounds each request. Zero selects DefaultTimeout.
	Timeout time.Duration
	// Retries is the number of extra attempts for transient failures.
	Retries int
	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
	// Offline forbids network access; only file: URLs and cached metadata
	// are served.
	Offline bool
	// Headers are applied to every request.
	Headers map[string]string
	Logger  *log.Logger
}

// Client provides shared HTTP functionality for the repository clients.
type Client struct {
	http    *http.Client
	cache   *httputil.Cache
	headers map[string]string
	retries int
	delay   time.Duration
	offline bool
	logger  *log.Logger
}

// NewClient creates a Client. cache may be nil to disable metadata caching.
func NewClient(cache *httputil.Cache, opts Options) *Client {
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Client{
		http:    NewHTTPClient(opts.Timeout),
		cache:   cache,
		headers: opts.Headers,
		retries: max(opts.Retries, 0),
		delay:   delay,
		offline: opts.Offline,
		logger:  logger,
	}
}

// Offline reports whether the client refuses network access.
func (c *Client) Offline() bool { return c.offline }

// Cached retrieves a value from cache or executes fetch and caches the result.
//
// In offline mode, or when fetch fails, an expired entry is served instead.
// Without any cached entry an offline lookup fails with [ErrOffline].
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	if c.cache != nil && !refresh {
		if ok, _ := c.cache.Get(key, v); ok {
			return nil
		}
	}
	if c.offline {
		if c.cache != nil {
			if ok, _ := c.cache.GetStale(key, v); ok {
				return nil
			}
		}
		return fmt.Errorf("%w: %s is not cached", ErrOffline, key)
	}
	if err := c.retry(ctx, fetch); err != nil {
		if c.cache != nil {
			if ok, _ := c.cache.GetStale(key, v); ok {
				c.logger.Warn("using stale metadata", "key", key, "err", err)
				return nil
			}
		}
		return err
	}
	if c.cache != nil {
		_ = c.cache.Set(key, v)
	}
	return nil
}

// Fetch returns the full body at rawURL. file: URLs are read from disk.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	err := c.retry(ctx, func() error {
		body, err := c.Open(ctx, rawURL)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err = io.ReadAll(body)
		if err != nil {
			return transportError(err)
		}
		return nil
	})
	return data, err
}

// Download streams rawURL into dst. The body is written to a temporary file
// in dst's directory and renamed into place once complete, so dst never holds
// a partial download.
func (c *Client) Download(ctx context.Context, rawURL, dst string) error {
	return c.retry(ctx, func() error {
		body, err := c.Open(ctx, rawURL)
		if err != nil {
			return err
		}
		defer body.Close()

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".part.*")
		if err != nil {
			return err
		}
		tmpName := tmp.Name()
		committed := false
		defer func() {
			if !committed {
				_ = tmp.Close()
				_ = os.Remove(tmpName)
			}
		}()

		if _, err := io.Copy(tmp, body); err != nil {
			return transportError(err)
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		if err := os.Rename(tmpName, dst); err != nil {
			return err
		}
		committed = true
		return nil
	})
}

// Open returns a reader for rawURL. The caller must close it.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if IsFileURL(rawURL) {
		path, err := FilePath(rawURL)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
		}
		return f, err
	}
	if c.offline {
		return nil, fmt.Errorf("%w: cannot fetch %s", ErrOffline, rawURL)
	}
	return c.doRequest(ctx, rawURL)
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	return httputil.Retry(ctx, c.retries+1, c.delay, fn)
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return nil, transportError(err)
	}
	hooks.OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
