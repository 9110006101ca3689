package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const shutdownTimeout = 15 * time.Second

// ListenAndServe runs the given servers until ctx is done. Servers are then
// shut down, letting in-flight requests complete within a grace period.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.New("shutting down the server failed").
					WithTag("addr", s.Addr).
					WithTag("timeout", shutdownTimeout).
					Wrap(err))
			}
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("starting server")

			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logs.Error(errors.New("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err))
				return
			}
			logs.WithTag("addr", s.Addr).Info("server stopped")
		}(s)
	}

	wg.Wait()
}

// MetricsPathFormatter returns empty string on HTTP 301, 400, 404 or 405
// statusCode. Tiling ids are replaced by a placeholder.
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}

	if rest, ok := strings.CutPrefix(path, "/tilings/"); ok {
		if _, action, ok := strings.Cut(rest, "/"); ok {
			return "/tilings/{id}/" + action
		}
		return "/tilings/{id}"
	}
	return path
}
