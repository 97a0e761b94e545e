// Package service wires the model loader, session cache and predictor into
// the operations required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/okian/motionscore/internal/adapters/modelstore"
	"github.com/okian/motionscore/internal/adapters/mq/queue"
	"github.com/okian/motionscore/internal/adapters/mq/worker"
	"github.com/okian/motionscore/internal/adapters/onnx"
	"github.com/okian/motionscore/internal/adapters/session"
	"github.com/okian/motionscore/internal/config"
	"github.com/okian/motionscore/internal/domain/resample"
	"github.com/okian/motionscore/internal/domain/scoring"
	"github.com/okian/motionscore/internal/domain/types"
	"github.com/okian/motionscore/pkg/errkind"
	"github.com/okian/motionscore/pkg/logger"
)

// Batch defaults.
const (
	defaultBatchQueueSize = 1024
	defaultMaxBatch       = 64
)

// Service implements the API dependencies for the scoring service.
type Service struct {
	mu sync.RWMutex

	// Core components
	source    session.Source
	fetcher   session.Fetcher
	builder   session.Builder
	store     *modelstore.Store
	engine    *onnx.Engine
	cache     *session.Cache
	predictor *scoring.Predictor
	queue     *queue.InMemoryQueue
	pool      *worker.Pool

	// Configuration
	defaultTargetLen int
	preload          bool
	batchWorkers     int
	batchQueueSize   int
	maxBatch         int
	storeOpts        []modelstore.Option
	engineOpts       []onnx.Option

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithModelSource sets where the model URI and digest are read from on each
// load. Defaults to re-reading process configuration.
func WithModelSource(src session.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithFetcher replaces the default object-store backed fetcher.
func WithFetcher(f session.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithBuilder replaces the default ONNX Runtime engine.
func WithBuilder(b session.Builder) Option {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithDefaultTargetLen sets the clip length used for dynamic-width models.
func WithDefaultTargetLen(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultTargetLen = n
		}
	}
}

// WithPreload controls whether Start warms the model cache.
func WithPreload(preload bool) Option {
	return func(s *Service) {
		s.preload = preload
	}
}

// WithBatchWorkers sets the number of workers scoring batch clips.
func WithBatchWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// WithBatchQueueSize sets how many batch clips may wait for a worker.
func WithBatchQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchQueueSize = n
		}
	}
}

// WithMaxBatch caps the number of clips in one batch request.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithStoreOptions configures the default fetcher.
func WithStoreOptions(opts ...modelstore.Option) Option {
	return func(s *Service) {
		s.storeOpts = append(s.storeOpts, opts...)
	}
}

// WithEngineOptions configures the default builder.
func WithEngineOptions(opts ...onnx.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		defaultTargetLen: resample.DefaultTargetLen,
		preload:          true,
		batchWorkers:     runtime.NumCPU(),
		batchQueueSize:   defaultBatchQueueSize,
		maxBatch:         defaultMaxBatch,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// configSource reloads process configuration on every load cycle.
func configSource(ctx context.Context) (session.ModelConfig, error) {
	m, err := config.ModelSource(ctx)
	if err != nil {
		return session.ModelConfig{}, err
	}
	return session.ModelConfig{URI: m.URI, SHA256: m.SHA256}, nil
}

// Start builds the components and, when preloading, warms the model. A
// failed warm-up is logged and left for readiness to report.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting scoring service...")

	if s.source == nil {
		s.source = session.SourceFunc(configSource)
	}
	if s.fetcher == nil {
		s.store = modelstore.New(append(s.storeOpts, modelstore.WithLogger(s.logger.Named("modelstore")))...)
		s.fetcher = s.store
	}
	if s.builder == nil {
		s.engine = onnx.NewEngine(append(s.engineOpts, onnx.WithLogger(s.logger.Named("onnx")))...)
		s.builder = s.engine
	}
	s.cache = session.New(s.source, s.fetcher, s.builder, session.WithLogger(s.logger.Named("session")))
	s.predictor = scoring.NewPredictor(s.cache,
		scoring.WithDefaultTargetLen(s.defaultTargetLen),
		scoring.WithLogger(s.logger.Named("scoring")),
	)
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.batchQueueSize))
	s.pool = worker.NewPool(s.batchWorkers, s.queue, s.predictor, s.logger.Named("worker"))
	s.pool.Start(ctx)
	s.started = true
	cache := s.cache
	s.mu.Unlock()

	s.logger.Info(ctx, "scoring service started",
		logger.Int("defaultTargetLen", s.defaultTargetLen),
		logger.Bool("preload", s.preload),
		logger.Int("batchWorkers", s.pool.Size()),
	)

	if s.preload {
		lease, err := cache.GetOrCreate(ctx)
		if err != nil {
			s.logger.Warn(ctx, "model preload failed; readiness will report unavailable", logger.Error(err))
			return nil
		}
		lease.Release()
	}
	return nil
}

// Stop releases the model and any remote clients.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoring service...")

	// Drain queued batch clips while the model is still loaded.
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	s.pool, s.queue = nil, nil

	_ = s.cache.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "closing model store failed", logger.Error(err))
		}
		s.store, s.fetcher = nil, nil
	}
	if s.engine != nil {
		if err := s.engine.Shutdown(); err != nil {
			s.logger.Warn(ctx, "onnxruntime shutdown failed", logger.Error(err))
		}
		s.engine, s.builder = nil, nil
	}

	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
}

func (s *Service) components() (*session.Cache, *scoring.Predictor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.cache, s.predictor, nil
}

// Predict scores one clip. The fps hint is validated and logged but does not
// affect the score.
func (s *Service) Predict(ctx context.Context, req types.PredictRequest) (types.ScoreResponse, error) {
	const op = "service.predict"
	_, predictor, err := s.components()
	if err != nil {
		return types.ScoreResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return types.ScoreResponse{}, errkind.Wrap(op, ErrInvalidRequest, err)
	}
	if req.FPS != nil {
		s.logger.Debug(ctx, "prediction request",
			logger.Int("frames", len(req.Keypoints)),
			logger.Float64("fps", *req.FPS),
		)
	}

	score, err := predictor.Predict(ctx, req.Clip())
	if err != nil {
		return types.ScoreResponse{}, err
	}
	return types.FromScore(score), nil
}

// PredictBatch scores several clips on the worker pool. Results line up with
// reqs; a failure of one clip is reported in its BatchResult and does not
// fail the others.
func (s *Service) PredictBatch(ctx context.Context, reqs []types.PredictRequest) ([]types.BatchResult, error) {
	const op = "service.predict_batch"
	s.mu.RLock()
	started, q, maxBatch := s.started, s.queue, s.maxBatch
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	switch {
	case len(reqs) == 0:
		return nil, errkind.Wrap(op, ErrInvalidRequest, ErrEmptyBatch)
	case len(reqs) > maxBatch:
		return nil, errkind.Wrap(op, ErrInvalidRequest,
			fmt.Errorf("%w: %d clips, limit %d", ErrBatchTooLarge, len(reqs), maxBatch))
	}

	out := make([]types.BatchResult, len(reqs))
	done := make(chan queue.Result, len(reqs))
	pending := 0
	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			out[i].Err = errkind.Wrap(op, ErrInvalidRequest, err)
			continue
		}
		err := q.Enqueue(ctx, queue.Job{Ctx: ctx, Index: i, Clip: req.Clip(), Done: done})
		switch {
		case err == nil:
			pending++
		case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
			out[i].Err = errkind.Wrap(op, ErrOverloaded, err)
		default:
			out[i].Err = err
		}
	}

	s.logger.Debug(ctx, "batch queued",
		logger.Int("clips", len(reqs)),
		logger.Int("queued", pending),
	)

	for ; pending > 0; pending-- {
		select {
		case r := <-done:
			if r.Err != nil {
				out[r.Index].Err = r.Err
				continue
			}
			out[r.Index].Response = types.FromScore(r.Score)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

// Ready loads the model if needed and reports whether it is usable.
func (s *Service) Ready(ctx context.Context) error {
	cache, _, err := s.components()
	if err != nil {
		return err
	}
	lease, err := cache.GetOrCreate(ctx)
	if err != nil {
		return err
	}
	lease.Release()
	return nil
}

// Reload drops the cached model and loads it again from current
// configuration. In-flight predictions finish on the old model.
func (s *Service) Reload(ctx context.Context) error {
	cache, _, err := s.components()
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "reloading model")
	cache.Clear()
	return s.Ready(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.Stats{
		Started:          s.started,
		ModelState:       session.StateUnloaded.String(),
		DefaultTargetLen: s.defaultTargetLen,
	}
	if s.started {
		stats.ModelState = s.cache.State().String()
		stats.ModelLoads = s.cache.Loads()
		stats.ModelDigest = s.cache.Digest()
		stats.BatchWorkers = s.pool.Size()
		stats.BatchQueued = s.queue.Len()
	}
	return stats
}
