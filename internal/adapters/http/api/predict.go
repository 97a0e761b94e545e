package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/motionscore/internal/domain/types"
	"github.com/okian/motionscore/pkg/errkind"
	"github.com/okian/motionscore/pkg/logger"
)

// Predictor is the scoring dependency of PredictHandler.
type Predictor interface {
	Predict(ctx context.Context, req types.PredictRequest) (types.ScoreResponse, error)
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	predictor    Predictor
	maxBodyBytes int64
	logger       logger.Logger
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(p Predictor, maxBodyBytes int64, l logger.Logger) *PredictHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &PredictHandler{predictor: p, maxBodyBytes: maxBodyBytes, logger: l}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req types.PredictRequest
	if !decodeJSON(w, r, op, h.maxBodyBytes, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, errkind.Wrap(op, ErrBadRequest, err))
		return
	}

	resp, err := h.predictor.Predict(r.Context(), req)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "prediction failed",
				logger.String("code", code),
				logger.Int("frames", len(req.Keypoints)),
				logger.Error(err),
			)
		}
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeJSON enforces the JSON content type and the body cap, then decodes
// the body into v. It writes the error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, maxBodyBytes int64, v any) bool {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, codeUnsupportedMedia, errkind.New(op, ErrUnsupportedMediaType))
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, errkind.Wrap(op, ErrBodyTooLarge, err))
			return false
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, errkind.Wrap(op, ErrBadRequest, err))
		return false
	}
	return true
}
