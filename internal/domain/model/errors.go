package model

import "errors"

// Sentinel error kinds shared by the scoring pipeline.
var (
	// ErrEmptyInput reports a clip with no keypoints.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidTargetLength reports a resample target below one.
	ErrInvalidTargetLength = errors.New("invalid target length")
	// ErrUnsupportedURI reports a model URI whose scheme cannot be fetched.
	ErrUnsupportedURI = errors.New("unsupported model uri")
	// ErrCorruptModel reports model bytes that cannot be deserialized.
	ErrCorruptModel = errors.New("corrupt model")
	// ErrIntegrity reports a model whose content hash does not match.
	ErrIntegrity = errors.New("model integrity check failed")
	// ErrInference reports a failed or malformed inference run.
	ErrInference = errors.New("inference failed")
	// ErrModelUnavailable marks any failure to produce a loaded model,
	// including fetch and runtime initialisation errors.
	ErrModelUnavailable = errors.New("model unavailable")
)

// IsLoadError reports whether err stems from loading the model rather than
// from the request or the inference run.
func IsLoadError(err error) bool {
	return errors.Is(err, ErrModelUnavailable) ||
		errors.Is(err, ErrUnsupportedURI) ||
		errors.Is(err, ErrCorruptModel) ||
		errors.Is(err, ErrIntegrity)
}
