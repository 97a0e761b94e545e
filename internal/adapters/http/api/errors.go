package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/motionscore/internal/app"
	"github.com/okian/motionscore/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest           = errors.New("bad request")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrBodyTooLarge         = errors.New("request body too large")
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest       = "bad_request"
	codeEmptyInput       = "empty_input"
	codeUnsupportedMedia = "unsupported_media_type"
	codeTooLarge         = "payload_too_large"
	codeModelUnavailable = "model_unavailable"
	codeInferenceFailed  = "inference_failed"
	codeCancelled        = "cancelled"
	codeOverloaded       = "overloaded"
	codeInternal         = "internal"
)

// classify maps a core error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrEmptyInput):
		return http.StatusBadRequest, codeEmptyInput
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, service.ErrOverloaded):
		return http.StatusServiceUnavailable, codeOverloaded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeCancelled
	case model.IsLoadError(err), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, codeModelUnavailable
	case errors.Is(err, model.ErrInference):
		return http.StatusInternalServerError, codeInferenceFailed
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
