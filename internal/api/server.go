// Package api is the REST/JSON surface over the evaluation pipeline. The
// core contract is the TrustResult JSON shape; everything else here is
// adapter plumbing.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clawtrust/engine/internal/pipeline"
	"github.com/clawtrust/engine/internal/trust"
)

// LinkStore is the slice of the persistence driver the challenge-callback
// endpoint needs. May be nil when running without Postgres.
type LinkStore interface {
	Upsert(ctx context.Context, link trust.IdentityLink) error
}

// Server wires the pipeline into HTTP.
type Server struct {
	pipeline *pipeline.Pipeline
	links    LinkStore
	stream   *Stream
	limiter  *rateLimiter
}

func NewServer(p *pipeline.Pipeline, links LinkStore, stream *Stream) *Server {
	return &Server{pipeline: p, links: links, stream: stream}
}

// WithRateLimit enables per-caller throttling. perMinute <= 0 disables it.
func (s *Server) WithRateLimit(perMinute int) *Server {
	if perMinute > 0 {
		s.limiter = newRateLimiter(perMinute)
	}
	return s
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}

	r.HandleFunc("/api/v1/evaluate", s.handleEvaluate).Methods("POST")
	r.HandleFunc("/api/v1/evaluate/{namespace}/{id:.+}", s.handleEvaluateGet).Methods("GET")
	r.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/v1/cache/invalidate", s.handleInvalidate).Methods("POST")
	r.HandleFunc("/api/v1/links", s.handleAddLink).Methods("POST")
	if s.stream != nil {
		r.HandleFunc("/api/v1/stream", s.stream.Handler).Methods("GET")
	}
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("trust engine API listening", "addr", addr)
	return srv.ListenAndServe()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
