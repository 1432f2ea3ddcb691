package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/matzehuels/osgirepo/pkg/pipeline"
)

const (
	defaultServeAddr = "localhost:8080"
	shutdownTimeout  = 5 * time.Second
)

// serveCommand serves the generated repository over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repository directory and archive over HTTP",
		Long: `Serve exposes the work directory at / so the index and its artifacts can be
consumed by URL, and the repository archive at /archive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := os.Stat(cfg.IndexPath()); err != nil {
				printWarning("No index at %s, run %s build first", cfg.IndexPath(), appName)
			}
			return c.serve(cmd.Context(), addr, newRepositoryHandler(cfg, c.Logger))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr, "listen address")
	return cmd
}

// newRepositoryHandler routes / to the work directory and /archive to the
// repository archive.
func newRepositoryHandler(cfg *pipeline.Config, logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	archive := cfg.ArchivePath()
	r.Get("/archive", func(w http.ResponseWriter, req *http.Request) {
		if _, err := os.Stat(archive); err != nil {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		http.ServeFile(w, req, archive)
	})
	r.Handle("/*", http.FileServer(http.Dir(cfg.WorkDir)))
	return r
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Millisecond))
		})
	}
}

// serve runs the server until ctx is cancelled.
func (c *CLI) serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	printSuccess("Serving repository")
	printKeyValue("url", StyleLink.Render("http://"+addr+"/"))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}
