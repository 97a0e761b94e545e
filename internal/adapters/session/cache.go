// Package session owns the process-wide model handle: it loads the model on
// first use, shares it between concurrent predictions, and supports clearing
// it for a reload.
package session

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/motionscore/internal/adapters/modelstore"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/errkind"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache holds at most one loaded model handle.
type Cache struct {
	source  Source
	fetcher Fetcher
	builder Builder
	logger  logger.Logger

	group singleflight.Group
	loads atomic.Int64

	mu         sync.Mutex
	current    *entry
	generation uint64
	inflight   int
	closed     bool
}

// New creates an empty cache. Nothing is loaded until GetOrCreate.
func New(source Source, fetcher Fetcher, builder Builder, opts ...Option) *Cache {
	c := &Cache{
		source:  source,
		fetcher: fetcher,
		builder: builder,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns a lease on the loaded handle, loading it first when
// the cache is empty. Concurrent callers share one load. A caller whose ctx
// ends stops waiting; the load itself runs to completion for the others.
func (c *Cache) GetOrCreate(ctx context.Context) (*Lease, error) {
	const op = "session.get_or_create"
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, errkind.Wrap(op, model.ErrModelUnavailable, ErrClosed)
		}
		if e := c.current; e != nil {
			e.acquire()
			c.mu.Unlock()
			return &Lease{entry: e}, nil
		}
		gen := c.generation
		c.mu.Unlock()

		ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
			return nil, c.load(context.WithoutCancel(ctx), gen)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}
		// The load installed its entry, or a Clear discarded it and the next
		// pass starts a fresh cycle.
	}
}

// Borrow adapts GetOrCreate to the predictor's model source.
func (c *Cache) Borrow(ctx context.Context) (model.Handle, func(), error) {
	lease, err := c.GetOrCreate(ctx)
	if err != nil {
		return nil, nil, err
	}
	return lease.Handle(), lease.Release, nil
}

func (c *Cache) load(ctx context.Context, gen uint64) error {
	const op = "session.load"
	start := time.Now()
	c.mu.Lock()
	// A caller that saw an empty cache may reach the flight after the load
	// for its generation has already finished and left the group.
	if c.closed || c.current != nil || c.generation != gen {
		c.mu.Unlock()
		return nil
	}
	c.inflight++
	c.publishStateLocked()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inflight--
		c.publishStateLocked()
		c.mu.Unlock()
	}()

	e, cfg, err := c.build(ctx)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordModelLoad(metrics.LoadFailure, elapsed)
		c.logger.Error(ctx, "model load failed",
			logger.String("uri", cfg.URI),
			logger.Error(err),
		)
		return errkind.Wrap(op, model.ErrModelUnavailable, err)
	}

	c.mu.Lock()
	if c.closed || c.current != nil || c.generation != gen {
		c.mu.Unlock()
		e.release()
		metrics.RecordModelLoad(metrics.LoadSuccess, elapsed)
		c.logger.Info(ctx, "discarding superseded model load",
			logger.String("uri", cfg.URI),
			logger.String("digest", e.digest),
		)
		return nil
	}
	c.current = e
	c.mu.Unlock()

	n := c.loads.Add(1)
	metrics.RecordModelLoad(metrics.LoadSuccess, elapsed)
	metrics.UpdateModelBytes(e.size)
	metrics.UpdateModelInputWidth(e.handle.InputWidth())
	c.logger.Info(ctx, "model loaded",
		logger.String("uri", cfg.URI),
		logger.String("digest", e.digest),
		logger.Int("bytes", e.size),
		logger.Int("input_width", e.handle.InputWidth()),
		logger.Int64("loads", n),
		logger.Float64("duration_ms", elapsed),
	)
	return nil
}

func (c *Cache) build(ctx context.Context) (*entry, ModelConfig, error) {
	cfg, err := c.source.ModelConfig(ctx)
	if err != nil {
		return nil, cfg, err
	}
	data, err := c.fetcher.Load(ctx, cfg.URI)
	if err != nil {
		return nil, cfg, err
	}
	if err := modelstore.Verify(data, cfg.SHA256); err != nil {
		return nil, cfg, err
	}
	h, err := c.builder.Build(ctx, data)
	if err != nil {
		return nil, cfg, err
	}
	return newEntry(h, modelstore.Digest(data), len(data), c.logger), cfg, nil
}

// Clear drops the cached handle so the next GetOrCreate reloads from the
// current configuration. Outstanding leases keep the old handle open until
// they are released.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.generation++
	old := c.current
	c.current = nil
	c.publishStateLocked()
	c.mu.Unlock()

	if old != nil {
		c.logger.Info(context.Background(), "model cache cleared", logger.String("digest", old.digest))
		old.release()
	}
}

// Close clears the cache and rejects further loads.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Clear()
	return nil
}

// State reports the lifecycle position.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Loads reports how many models have been built successfully and installed.
func (c *Cache) Loads() int64 { return c.loads.Load() }

// Digest returns the SHA-256 of the loaded model, or "" when unloaded.
func (c *Cache) Digest() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.digest
}

func (c *Cache) stateLocked() State {
	switch {
	case c.current != nil:
		return StateReady
	case c.inflight > 0 && !c.closed:
		return StateLoading
	default:
		return StateUnloaded
	}
}

func (c *Cache) publishStateLocked() {
	metrics.UpdateCacheState(int(c.stateLocked()))
}
