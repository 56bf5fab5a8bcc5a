// Package httpapi serves this process's debug/introspection HTTP surface —
// /healthz, /metrics (Prometheus), and /openapi.json — distinct from the
// JSON-RPC transport, which remains the only peer-facing protocol surface.
// It is off by default; a deployment opts in by calling Serve.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher"
	"github.com/ado-mcp/ado-work-mcp/internal/metrics"
	"github.com/ado-mcp/ado-work-mcp/internal/openapi"
)

// Config configures the debug HTTP surface.
type Config struct {
	Dispatcher     *dispatcher.Dispatcher
	Metrics        *metrics.Sink
	MetricsNS      string
	OpenAPITitle   string
	OpenAPIVersion string
}

// NewRouter builds the chi router for the debug HTTP surface. It is
// separated from Serve so tests can exercise it with httptest without
// binding a real port.
func NewRouter(cfg Config) (*chi.Mux, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", healthzHandler)

	if cfg.Metrics != nil {
		registry := prometheus.NewRegistry()
		ns := cfg.MetricsNS
		if ns == "" {
			ns = "ado_mcp"
		}
		if err := registry.Register(metrics.NewPromCollector(cfg.Metrics, ns)); err != nil {
			return nil, err
		}
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if cfg.Dispatcher != nil {
		doc, err := openapi.Generate(cfg.Dispatcher, cfg.OpenAPITitle, cfg.OpenAPIVersion)
		if err != nil {
			return nil, err
		}
		body, err := openapi.MarshalJSON(doc)
		if err != nil {
			return nil, err
		}
		r.Get("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
		})
	}

	return r, nil
}

// Serve starts the debug HTTP surface on addr and blocks until the server
// stops, returning ListenAndServe's error. Callers typically run it in its
// own goroutine alongside the JSON-RPC transport loop.
func Serve(addr string, cfg Config) error {
	r, err := NewRouter(cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
