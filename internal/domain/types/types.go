// Package types contains the wire types shared by the HTTP API, the service
// and the load generator.
package types

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/motionscore/internal/domain/model"
)

// ErrInvalidFPS reports a negative or non-finite fps hint.
var ErrInvalidFPS = errors.New("invalid fps")

// Keypoint is one frame's body position.
type Keypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Keypoints []Keypoint `json:"keypoints"`
	// FPS is the capture rate of the clip. It is informational only.
	FPS *float64 `json:"fps,omitempty"`
}

// Validate checks the optional fps hint. An empty clip is left to the
// predictor so that it is reported as empty input.
func (r PredictRequest) Validate() error {
	if r.FPS == nil {
		return nil
	}
	if fps := *r.FPS; fps < 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidFPS, fps)
	}
	return nil
}

// Clip converts the request keypoints to the domain clip.
func (r PredictRequest) Clip() model.Clip {
	clip := make(model.Clip, len(r.Keypoints))
	for i, kp := range r.Keypoints {
		clip[i] = model.Keypoint{X: kp.X, Y: kp.Y}
	}
	return clip
}

// ScoreResponse is the body of a successful prediction.
type ScoreResponse struct {
	Score       int     `json:"score"`
	Symmetry    float64 `json:"symmetry"`
	Power       float64 `json:"power"`
	Consistency float64 `json:"consistency"`
}

// FromScore converts a domain score to its wire form.
func FromScore(s model.Score) ScoreResponse {
	return ScoreResponse{
		Score:       s.Score,
		Symmetry:    s.Symmetry,
		Power:       s.Power,
		Consistency: s.Consistency,
	}
}

// InBounds reports whether every field lies in its documented range.
func (r ScoreResponse) InBounds() bool {
	in01 := func(v float64) bool { return v >= 0 && v <= 1 }
	return r.Score >= 0 && r.Score <= 100 && in01(r.Symmetry) && in01(r.Power) && in01(r.Consistency)
}

// BatchRequest is the body of POST /api/v1/score/batch.
type BatchRequest struct {
	Clips []PredictRequest `json:"clips"`
}

// BatchResult is the outcome of one clip of a batch. Exactly one of
// Response and Err is meaningful.
type BatchResult struct {
	Response ScoreResponse
	Err      error
}

// Stats describes the service for GET /stats and POST /admin/reload.
type Stats struct {
	Started          bool   `json:"started"`
	ModelState       string `json:"model_state"`
	ModelLoads       int64  `json:"model_loads"`
	ModelDigest      string `json:"model_digest,omitempty"`
	DefaultTargetLen int    `json:"default_target_len"`
	BatchWorkers     int    `json:"batch_workers"`
	BatchQueued      int    `json:"batch_queued"`
}
