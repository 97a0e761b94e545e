package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/motionscore/internal/domain/types"
	"github.com/okian/motionscore/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	stepScale          = 0.05
)

var fpsChoices = []float64{24, 30, 60}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [lo, hi].
func getRandomInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(hi-lo+1)))
	return lo + int(n.Int64())
}

// generateClips creates config.NumClips clips with lengths drawn uniformly
// from [MinLen, MaxLen].
func generateClips(ctx context.Context, config *Config, stats *Stats) ([]Clip, error) {
	logger.Get().Info(ctx, "generating clips",
		logger.Int("numClips", config.NumClips),
		logger.Int("minLen", config.MinLen),
		logger.Int("maxLen", config.MaxLen),
	)

	clips := make([]Clip, config.NumClips)
	for i := range clips {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during clip generation: %w", err)
		}
		clips[i] = generateSingleClip(getRandomInt(config.MinLen, config.MaxLen))
	}

	stats.ClipsGenerated = len(clips)
	logger.Get().Info(ctx, "generated clips successfully", logger.Int("count", len(clips)))
	return clips, nil
}

// generateSingleClip produces a random walk in the unit square, the shape a
// normalised keypoint track has.
func generateSingleClip(frames int) Clip {
	kps := make([]types.Keypoint, frames)
	x, y := getRandomFloat(), getRandomFloat()
	for i := range kps {
		x = clamp01(x + (getRandomFloat()-0.5)*stepScale)
		y = clamp01(y + (getRandomFloat()-0.5)*stepScale)
		kps[i] = types.Keypoint{X: x, Y: y}
	}
	fps := fpsChoices[getRandomInt(0, len(fpsChoices)-1)]
	return Clip{
		ID:      uuid.NewString(),
		Request: types.PredictRequest{Keypoints: kps, FPS: &fps},
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
