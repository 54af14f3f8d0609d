package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"warmsetd/internal/manager"
	"warmsetd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Bind(ctx context.Context, modelID string) error
	PrefetchNext(ctx context.Context, n uint32) (uint32, error)
	Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error)
	ModelMeta(ctx context.Context, modelID string) (types.ModelMeta, error)
	ListModels() ([]string, error)
	Health() types.Health
	LoaderStats() types.LoaderStats
	Status() types.StatusResponse
	Ready() bool
}

// RuntimeConfigurer is implemented by services whose tunables can change
// while serving. It enables GET/PUT /config.
type RuntimeConfigurer interface {
	Config() manager.RuntimeConfig
	SetConfig(manager.RuntimeConfig)
}

// EventSource exposes recently published manager events. It enables GET /events.
type EventSource interface {
	Events() []manager.Event
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}

	r.Post("/bind", h.bind)
	r.Post("/prefetch", h.prefetch)
	r.Post("/generate", h.generate)

	r.Get("/health", h.health)
	r.Get("/loader", h.loader)
	r.Get("/status", h.status)

	r.Get("/models", h.listModels)
	r.Get("/models/{id}/meta", h.modelMeta)

	r.Route("/quality", func(r chi.Router) {
		r.Post("/score", h.qualityScore)
		r.Post("/meta", h.qualityMeta)
	})

	if rc, ok := svc.(RuntimeConfigurer); ok {
		r.Get("/config", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, http.StatusOK, rc.Config()) })
		r.Put("/config", h.putConfig(rc))
	}
	if es, ok := svc.(EventSource); ok {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			events := es.Events()
			if events == nil {
				events = []manager.Event{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": events})
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unbound"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}
