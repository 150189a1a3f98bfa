package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/wms-source/internal/core/config"
	"github.com/mohammed-shakir/wms-source/internal/core/health"
	middleware "github.com/mohammed-shakir/wms-source/internal/core/middleware"
	"github.com/mohammed-shakir/wms-source/internal/core/router"
	"github.com/mohammed-shakir/wms-source/internal/wms/source"
)

// NewHandler wires the routes. metrics may be nil when metrics are served
// elsewhere or disabled.
func NewHandler(logger *slog.Logger, reg *source.Registry, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(reg))
	if metrics != nil {
		r.Get("/metrics", metrics.ServeHTTP)
	}
	r.Get("/sources", router.HandleList(reg))
	r.Get("/sources/{name}/map", router.HandleMap(logger, reg))
	r.Get("/sources/{name}/info", router.HandleInfo(logger, reg))
	return r
}

// writeSlack covers request parsing and writing the body after the upstream
// fetch returns.
const writeSlack = 30 * time.Second

// WriteTimeout is the longest upstream timeout of any source (FETCH_TIMEOUT
// for sources without one) plus writeSlack, so no response is cut while its
// fetch may still succeed.
func WriteTimeout(fetchTimeout time.Duration, reg *source.Registry) time.Duration {
	longest := fetchTimeout
	for _, name := range reg.Names() {
		s, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		if ep := s.Config().Endpoint(); ep != nil && ep.Timeout > longest {
			longest = ep.Timeout
		}
	}
	return longest + writeSlack
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
