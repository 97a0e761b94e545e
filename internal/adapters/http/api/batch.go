package api

import (
	"context"
	"net/http"

	"github.com/okian/motionscore/internal/domain/types"
	"github.com/okian/motionscore/pkg/logger"
)

// BatchPredictor is the scoring dependency of BatchHandler.
type BatchPredictor interface {
	PredictBatch(ctx context.Context, reqs []types.PredictRequest) ([]types.BatchResult, error)
}

// BatchHandler handles batch prediction requests.
type BatchHandler struct {
	predictor    BatchPredictor
	maxBodyBytes int64
	logger       logger.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(p BatchPredictor, maxBodyBytes int64, l logger.Logger) *BatchHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &BatchHandler{predictor: p, maxBodyBytes: maxBodyBytes, logger: l}
}

type batchItem struct {
	Index int `json:"index"`
	*types.ScoreResponse
	Error *errorResponse `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
	Failed  int         `json:"failed"`
}

// HandleBatch handles POST /api/v1/score/batch. Per-clip failures are
// reported inline with the same codes as /predict; the request itself fails
// only when the batch as a whole cannot be scored.
func (h *BatchHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_batch"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req types.BatchRequest
	if !decodeJSON(w, r, op, h.maxBodyBytes, &req) {
		return
	}

	results, err := h.predictor.PredictBatch(r.Context(), req.Clips)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn(r.Context(), "batch prediction failed",
				logger.String("code", code),
				logger.Int("clips", len(req.Clips)),
				logger.Error(err),
			)
		}
		writeError(w, status, code, err)
		return
	}

	resp := batchResponse{Results: make([]batchItem, len(results))}
	for i, res := range results {
		item := batchItem{Index: i}
		if res.Err != nil {
			_, code := classify(res.Err)
			item.Error = &errorResponse{Code: code, Message: res.Err.Error()}
			resp.Failed++
		} else {
			score := res.Response
			item.ScoreResponse = &score
		}
		resp.Results[i] = item
	}
	writeJSON(w, http.StatusOK, resp)
}
