// Package resample maps variable-length clips onto the fixed temporal length a
// model expects.
package resample

import (
	"math"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/errkind"
)

// DefaultTargetLen is the temporal length used when a model declares a
// dynamic input width.
const DefaultTargetLen = 75

// Resample selects targetLen keypoints from clip by evenly spaced index
// positions over [0, len(clip)-1], floored to integer indices. Shorter clips
// are upsampled by duplication. Temporal order is preserved.
func Resample(clip model.Clip, targetLen int) (model.Clip, error) {
	const op = "resample"
	if len(clip) == 0 {
		return nil, errkind.New(op, model.ErrEmptyInput)
	}
	if targetLen < 1 {
		return nil, errkind.New(op, model.ErrInvalidTargetLength)
	}

	out := make(model.Clip, targetLen)
	for i, idx := range Indices(len(clip), targetLen) {
		out[i] = clip[idx]
	}
	return out, nil
}

// Indices returns the source index picked for every output slot. n and
// targetLen must both be positive.
func Indices(n, targetLen int) []int {
	if n < 1 || targetLen < 1 {
		return nil
	}
	idx := make([]int, targetLen)
	if targetLen == 1 {
		return idx
	}

	last := n - 1
	step := float64(last) / float64(targetLen-1)
	for i := range idx {
		j := int(math.Floor(float64(i) * step))
		if j > last {
			j = last
		}
		idx[i] = j
	}
	// The closed range always ends on the last frame.
	idx[targetLen-1] = last
	return idx
}

// Flatten lays a clip out time-major: x0, y0, x1, y1, ...
func Flatten(clip model.Clip) []float32 {
	flat := make([]float32, 0, 2*len(clip))
	for _, kp := range clip {
		flat = append(flat, float32(kp.X), float32(kp.Y))
	}
	return flat
}
