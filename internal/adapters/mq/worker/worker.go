// Package worker runs batch scoring jobs off the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/motionscore/internal/adapters/mq/queue"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Predictor scores one clip.
type Predictor interface {
	Predict(ctx context.Context, clip model.Clip) (model.Score, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue() <-chan queue.Job
}

// InMemoryWorker scores jobs until the queue is drained or its context ends.
type InMemoryWorker struct {
	queue     Queue
	predictor Predictor
	name      string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Predictor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		predictor: p,
		name:      "worker",
		done:      make(chan struct{}),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes jobs until the queue closes and is empty, or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(j)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(j queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	metrics.UpdateBatchQueueDepth(len(w.queue.Dequeue()))

	// The caller may have given up while the job waited.
	if err := j.Ctx.Err(); err != nil {
		metrics.RecordBatchJob(metrics.BatchCancelled)
		j.Done <- queue.Result{Index: j.Index, Err: err}
		return
	}

	start := time.Now()
	score, err := w.predictor.Predict(j.Ctx, j.Clip)
	if err != nil {
		metrics.RecordBatchJob(metrics.BatchFailed)
		w.logger.Debug(j.Ctx, "batch job failed",
			logger.String("worker", w.name),
			logger.Int("index", j.Index),
			logger.Error(err),
		)
	} else {
		metrics.RecordBatchJob(metrics.BatchScored)
		metrics.RecordBatchJobLatency(float64(time.Since(start).Microseconds()) / 1000)
	}
	j.Done <- queue.Result{Index: j.Index, Score: score, Err: err}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	cancel  context.CancelFunc

	logger logger.Logger
}

// NewPool creates a worker pool. A count below one uses the number of CPUs.
func NewPool(workerCount int, q Queue, p Predictor, l logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	if l == nil {
		l = logger.Nop()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		cancel:  func() {},
		logger:  l,
	}
	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		pool.workers[i] = NewInMemoryWorker(q, p,
			WithName(name),
			WithLogger(l.Named(name)),
		)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers. They outlive ctx's cancellation and stop only
// through Shutdown.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	metrics.UpdateBatchWorkers(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue and waits for workers to drain it. Workers still
// busy when ctx (or the pool's own limit) expires are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	defer p.cancel()
	defer metrics.UpdateBatchWorkers(0)

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.cancel()
			failed := p.failPending(shutdownCtx.Err())
			p.logger.Warn(ctx, "worker shutdown timed out",
				logger.Int("worker_id", i),
				logger.Int("abandoned_jobs", failed),
			)
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	return nil
}

// failPending answers every job still queued with err so no caller waits on
// a job that will never run.
func (p *Pool) failPending(err error) int {
	jobs := p.queue.Dequeue()
	n := 0
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return n
			}
			metrics.RecordBatchJob(metrics.BatchCancelled)
			j.Done <- queue.Result{Index: j.Index, Err: err}
			n++
		default:
			return n
		}
	}
}
