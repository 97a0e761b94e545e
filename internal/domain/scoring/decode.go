// Package scoring turns clips into bounded scores using a loaded model.
package scoring

import (
	"fmt"
	"math"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/errkind"
)

// Output layout and bounds.
const (
	minOutputLen  = 4
	maxScoreValue = 100
	scoreScale    = 100
)

// Decode maps a raw model output onto the bounded score contract:
// score = clamp(round(raw[0]*100), 0, 100); the three sub-metrics are raw[1..3]
// clamped to [0, 1]. NaN decodes to the lower bound.
func Decode(raw []float32) (model.Score, error) {
	if len(raw) < minOutputLen {
		return model.Score{}, errkind.Wrap("scoring.decode", model.ErrInference,
			fmt.Errorf("model returned %d values, need at least %d", len(raw), minOutputLen))
	}

	composite := clamp(math.Round(float64(raw[0])*scoreScale), 0, maxScoreValue)
	return model.Score{
		Score:       int(composite),
		Symmetry:    clamp(float64(raw[1]), 0, 1),
		Power:       clamp(float64(raw[2]), 0, 1),
		Consistency: clamp(float64(raw[3]), 0, 1),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
