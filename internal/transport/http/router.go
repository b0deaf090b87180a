package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartforge/internal/platform/middleware"
)

// RouterConfig tunes the shared middleware on the operator router.
type RouterConfig struct {
	// RequestTimeout bounds a single request. Generation runs hold several
	// model round trips, so the default is deliberately generous.
	RequestTimeout time.Duration
}

// NewRouter assembles the operator router: shared middleware, health and
// metrics endpoints, and the API routes from the handler.
func NewRouter(h *Handler, logger *slog.Logger, cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	h.Register(r)
	return r
}
