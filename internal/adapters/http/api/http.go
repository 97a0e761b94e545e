// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/motionscore/internal/domain/types"
	"github.com/okian/motionscore/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Predict(ctx context.Context, req types.PredictRequest) (types.ScoreResponse, error)
	PredictBatch(ctx context.Context, reqs []types.PredictRequest) ([]types.BatchResult, error)
	Ready(ctx context.Context) error
	Reload(ctx context.Context) error
	StatsProvider
}

// DefaultMaxBodyBytes caps prediction bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxBodyBytes caps the prediction request body.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxBodyBytes int64
	logger       logger.Logger

	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler
	batchHandler   *BatchHandler
	adminHandler   *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{maxBodyBytes: DefaultMaxBodyBytes, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps, s.logger)
	s.statsHandler = NewStatsHandler(deps)
	s.predictHandler = NewPredictHandler(deps, s.maxBodyBytes, s.logger)
	s.batchHandler = NewBatchHandler(deps, s.maxBodyBytes, s.logger)
	s.adminHandler = NewAdminHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}
	route("/healthz", "healthz", s.healthHandler.HandleHealth)
	route("/readyz", "readyz", s.healthHandler.HandleReady)
	route("/predict", "predict", s.predictHandler.HandlePredict)
	route("/api/v1/score", "predict", s.predictHandler.HandlePredict)
	route("/api/v1/score/batch", "predict_batch", s.batchHandler.HandleBatch)
	route("/admin/reload", "reload", s.adminHandler.HandleReload)
	route("/stats", "stats", s.statsHandler.HandleStats)
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
}
