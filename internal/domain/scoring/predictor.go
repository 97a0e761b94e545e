package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/internal/domain/resample"
	"github.com/okian/motionscore/pkg/errkind"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
)

// ModelSource lends a loaded model handle. The returned release func must be
// called once the caller is done with the handle.
type ModelSource interface {
	Borrow(ctx context.Context) (model.Handle, func(), error)
}

// Option applies a configuration option to the Predictor.
type Option func(*Predictor)

// WithDefaultTargetLen sets the temporal length used for models with a
// dynamic input width.
func WithDefaultTargetLen(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.defaultTargetLen = n
		}
	}
}

// WithLogger sets the predictor logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// Predictor runs resample, inference and decode for one clip at a time. It
// holds no mutable state and is safe for concurrent use.
type Predictor struct {
	source           ModelSource
	defaultTargetLen int
	logger           logger.Logger
}

// NewPredictor creates a predictor that borrows models from source.
func NewPredictor(source ModelSource, opts ...Option) *Predictor {
	p := &Predictor{
		source:           source,
		defaultTargetLen: resample.DefaultTargetLen,
		logger:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultTargetLen reports the fallback temporal length.
func (p *Predictor) DefaultTargetLen() int { return p.defaultTargetLen }

// Predict scores clip. Either all four fields are populated within bounds or
// an error is returned.
func (p *Predictor) Predict(ctx context.Context, clip model.Clip) (model.Score, error) {
	start := time.Now()
	score, err := p.predict(ctx, clip)
	metrics.RecordPrediction(outcome(err), float64(time.Since(start).Milliseconds()))
	if err != nil {
		p.logger.Debug(ctx, "prediction failed", logger.Int("frames", len(clip)), logger.Error(err))
		return model.Score{}, err
	}
	return score, nil
}

func (p *Predictor) predict(ctx context.Context, clip model.Clip) (model.Score, error) {
	const op = "scoring.predict"
	if len(clip) == 0 {
		return model.Score{}, errkind.New(op, model.ErrEmptyInput)
	}
	metrics.ObserveClipLength(len(clip))

	handle, release, err := p.source.Borrow(ctx)
	if err != nil {
		return model.Score{}, err
	}
	defer release()

	target, err := p.targetLen(handle)
	if err != nil {
		return model.Score{}, err
	}
	sampled, err := resample.Resample(clip, target)
	if err != nil {
		return model.Score{}, err
	}

	runStart := time.Now()
	raw, err := handle.Run(resample.Flatten(sampled))
	metrics.RecordInferenceLatency(float64(time.Since(runStart).Milliseconds()))
	if err != nil {
		if errors.Is(err, model.ErrInference) {
			return model.Score{}, err
		}
		return model.Score{}, errkind.Wrap(op, model.ErrInference, err)
	}
	return Decode(raw)
}

// targetLen derives the temporal length from the handle's flattened input
// width (two values per frame).
func (p *Predictor) targetLen(h model.Handle) (int, error) {
	width := h.InputWidth()
	switch {
	case width <= 0:
		return p.defaultTargetLen, nil
	case width%2 != 0:
		return 0, errkind.Wrap("scoring.target_len", model.ErrInference,
			fmt.Errorf("model input width %d is not a whole number of (x, y) frames", width))
	default:
		return width / 2, nil
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, model.ErrEmptyInput):
		return metrics.OutcomeEmptyInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	case errors.Is(err, model.ErrInference):
		return metrics.OutcomeInferenceError
	default:
		return metrics.OutcomeModelUnavailable
	}
}
