package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/motionscore/internal/adapters/modelstore"
	"github.com/okian/motionscore/internal/domain/model"
)

type fakeHandle struct {
	name   string
	width  int
	closed atomic.Bool
}

func (h *fakeHandle) InputWidth() int                     { return h.width }
func (h *fakeHandle) Run(in []float32) ([]float32, error) { return []float32{0.5, 0.5, 0.5, 0.5}, nil }
func (h *fakeHandle) Close() error                        { h.closed.Store(true); return nil }

// memFetcher serves artifacts from a map and counts calls.
type memFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  int // number of leading calls that fail
	calls atomic.Int64
}

func (f *memFetcher) Load(_ context.Context, uri string) ([]byte, error) {
	n := f.calls.Add(1)
	if int(n) <= f.fail {
		return nil, errors.New("connection reset")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[uri]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

// gatedBuilder builds fakeHandles named after their bytes. The first build
// waits on gate when gate is non-nil.
type gatedBuilder struct {
	gate    chan struct{}
	started chan struct{}
	builds  atomic.Int64

	mu      sync.Mutex
	handles []*fakeHandle
}

func (b *gatedBuilder) Build(ctx context.Context, data []byte) (model.Handle, error) {
	n := b.builds.Add(1)
	if n == 1 && b.gate != nil {
		close(b.started)
		<-b.gate
	}
	h := &fakeHandle{name: string(data), width: 150}
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
	return h, nil
}

func (b *gatedBuilder) handle(i int) *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[i]
}

func newGatedBuilder() *gatedBuilder {
	return &gatedBuilder{gate: make(chan struct{}), started: make(chan struct{})}
}

type countingSource struct {
	mu    sync.Mutex
	cfg   ModelConfig
	reads atomic.Int64
}

func (s *countingSource) ModelConfig(context.Context) (ModelConfig, error) {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

func (s *countingSource) set(cfg ModelConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty cache", t, func() {
		fetcher := &memFetcher{files: map[string][]byte{"a.onnx": []byte("model-a"), "b.onnx": []byte("model-b")}}
		builder := &gatedBuilder{}
		source := &countingSource{cfg: ModelConfig{URI: "a.onnx"}}
		cache := New(source, fetcher, builder)
		So(cache.State(), ShouldEqual, StateUnloaded)
		So(cache.Digest(), ShouldEqual, "")

		Convey("the first call loads and later calls reuse the handle", func() {
			first, err := cache.GetOrCreate(ctx)
			So(err, ShouldBeNil)
			second, err := cache.GetOrCreate(ctx)
			So(err, ShouldBeNil)

			So(second.Handle(), ShouldEqual, first.Handle())
			So(cache.State(), ShouldEqual, StateReady)
			So(cache.Loads(), ShouldEqual, 1)
			So(fetcher.calls.Load(), ShouldEqual, 1)
			So(source.reads.Load(), ShouldEqual, 1)
			So(cache.Digest(), ShouldEqual, modelstore.Digest([]byte("model-a")))
			So(first.Digest(), ShouldEqual, cache.Digest())
		})

		Convey("Borrow hands out the cached handle with a release func", func() {
			h, release, err := cache.Borrow(ctx)
			So(err, ShouldBeNil)
			So(h.InputWidth(), ShouldEqual, 150)
			release()
			So(h.(*fakeHandle).closed.Load(), ShouldBeFalse)
		})

		Convey("Clear makes the next call reload from the current configuration", func() {
			lease, err := cache.GetOrCreate(ctx)
			So(err, ShouldBeNil)
			lease.Release()
			source.set(ModelConfig{URI: "b.onnx", SHA256: modelstore.Digest([]byte("model-b"))})

			cache.Clear()
			So(cache.State(), ShouldEqual, StateUnloaded)
			So(builder.handle(0).closed.Load(), ShouldBeTrue)

			lease, err = cache.GetOrCreate(ctx)
			So(err, ShouldBeNil)
			So(lease.Handle().(*fakeHandle).name, ShouldEqual, "model-b")
			So(cache.Loads(), ShouldEqual, 2)
			So(source.reads.Load(), ShouldEqual, 2)
		})

		Convey("Clear on an empty cache is harmless", func() {
			cache.Clear()
			cache.Clear()
			So(cache.State(), ShouldEqual, StateUnloaded)
		})
	})
}

func TestLeases(t *testing.T) {
	ctx := context.Background()

	Convey("Given a loaded cache with an outstanding lease", t, func() {
		builder := &gatedBuilder{}
		cache := New(StaticSource(ModelConfig{URI: "m"}),
			&memFetcher{files: map[string][]byte{"m": []byte("m")}}, builder)
		lease, err := cache.GetOrCreate(ctx)
		So(err, ShouldBeNil)
		h := lease.Handle().(*fakeHandle)

		Convey("Clear does not close the handle while it is leased", func() {
			cache.Clear()
			So(h.closed.Load(), ShouldBeFalse)

			lease.Release()
			So(h.closed.Load(), ShouldBeTrue)

			Convey("and releasing twice is a no-op", func() {
				lease.Release()
				So(h.closed.Load(), ShouldBeTrue)
			})
		})

		Convey("Close rejects further loads and closes the handle once released", func() {
			So(cache.Close(), ShouldBeNil)
			So(h.closed.Load(), ShouldBeFalse)
			lease.Release()
			So(h.closed.Load(), ShouldBeTrue)

			_, err := cache.GetOrCreate(ctx)
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
			So(model.IsLoadError(err), ShouldBeTrue)
			So(cache.State(), ShouldEqual, StateUnloaded)
		})
	})
}

func TestConcurrentFirstAccess(t *testing.T) {
	Convey("Given many callers racing on an empty cache", t, func() {
		builder := newGatedBuilder()
		cache := New(StaticSource(ModelConfig{URI: "m"}),
			&memFetcher{files: map[string][]byte{"m": []byte("m")}}, builder)

		const callers = 32
		handles := make([]model.Handle, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				lease, err := cache.GetOrCreate(context.Background())
				errs[i] = err
				if err == nil {
					handles[i] = lease.Handle()
					lease.Release()
				}
			}(i)
		}

		<-builder.started
		So(cache.State(), ShouldEqual, StateLoading)
		close(builder.gate)
		wg.Wait()

		Convey("exactly one handle is built and everyone shares it", func() {
			So(builder.builds.Load(), ShouldEqual, 1)
			So(cache.Loads(), ShouldEqual, 1)
			for i := 0; i < callers; i++ {
				So(errs[i], ShouldBeNil)
				So(handles[i], ShouldEqual, handles[0])
			}
			So(cache.State(), ShouldEqual, StateReady)
		})
	})
}

func TestLoadFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fetcher that fails once", t, func() {
		fetcher := &memFetcher{files: map[string][]byte{"m": []byte("m")}, fail: 1}
		cache := New(StaticSource(ModelConfig{URI: "m"}), fetcher, &gatedBuilder{})

		Convey("the failure is reported as model unavailable and not cached", func() {
			_, err := cache.GetOrCreate(ctx)
			So(errors.Is(err, model.ErrModelUnavailable), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "connection reset")
			So(cache.State(), ShouldEqual, StateUnloaded)

			lease, err := cache.GetOrCreate(ctx)
			So(err, ShouldBeNil)
			So(lease.Handle(), ShouldNotBeNil)
			So(fetcher.calls.Load(), ShouldEqual, 2)
			So(cache.Loads(), ShouldEqual, 1)
		})
	})

	Convey("Given a model whose digest does not match", t, func() {
		builder := &gatedBuilder{}
		cache := New(StaticSource(ModelConfig{URI: "m", SHA256: modelstore.Digest([]byte("other"))}),
			&memFetcher{files: map[string][]byte{"m": []byte("m")}}, builder)

		Convey("no handle is built and the integrity kind survives wrapping", func() {
			_, err := cache.GetOrCreate(ctx)
			So(errors.Is(err, model.ErrIntegrity), ShouldBeTrue)
			So(errors.Is(err, model.ErrModelUnavailable), ShouldBeTrue)
			So(builder.builds.Load(), ShouldEqual, 0)
			So(cache.State(), ShouldEqual, StateUnloaded)
		})
	})

	Convey("Given a source that cannot produce configuration", t, func() {
		cache := New(SourceFunc(func(context.Context) (ModelConfig, error) {
			return ModelConfig{}, errors.New("config unavailable")
		}), &memFetcher{}, &gatedBuilder{})

		_, err := cache.GetOrCreate(ctx)
		So(model.IsLoadError(err), ShouldBeTrue)
	})
}

func TestWaitersAndClear(t *testing.T) {
	Convey("Given a load that is still in flight", t, func() {
		builder := newGatedBuilder()
		fetcher := &memFetcher{files: map[string][]byte{"m": []byte("m")}}
		cache := New(StaticSource(ModelConfig{URI: "m"}), fetcher, builder)

		Convey("a waiter whose context ends gives up without cancelling the load", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				_, err := cache.GetOrCreate(ctx)
				done <- err
			}()
			<-builder.started
			cancel()
			So(errors.Is(<-done, context.Canceled), ShouldBeTrue)

			close(builder.gate)
			lease, err := cache.GetOrCreate(context.Background())
			So(err, ShouldBeNil)
			So(lease.Handle(), ShouldEqual, builder.handle(0))
			So(builder.builds.Load(), ShouldEqual, 1)
		})

		Convey("a Clear during the load discards its result", func() {
			done := make(chan *Lease, 1)
			go func() {
				lease, err := cache.GetOrCreate(context.Background())
				if err != nil {
					done <- nil
					return
				}
				done <- lease
			}()
			<-builder.started
			cache.Clear()
			close(builder.gate)

			var lease *Lease
			select {
			case lease = <-done:
			case <-time.After(5 * time.Second):
			}
			So(lease, ShouldNotBeNil)
			So(builder.builds.Load(), ShouldEqual, 2)
			So(builder.handle(0).closed.Load(), ShouldBeTrue)
			So(lease.Handle(), ShouldEqual, builder.handle(1))
			So(cache.Loads(), ShouldEqual, 1)
		})
	})
}

func TestSingleConstructionUnderContention(t *testing.T) {
	const trials, callers = 500, 64
	ctx := context.Background()

	Convey("Given fresh caches hit by many first callers with an instant builder", t, func() {
		extra, leaked := 0, 0
		for trial := 0; trial < trials; trial++ {
			fetcher := &memFetcher{files: map[string][]byte{"a.onnx": []byte("model-a")}}
			builder := &gatedBuilder{}
			cache := New(StaticSource(ModelConfig{URI: "a.onnx"}), fetcher, builder)

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					lease, err := cache.GetOrCreate(ctx)
					if err == nil {
						lease.Release()
					}
				}()
			}
			close(start)
			wg.Wait()

			if builder.builds.Load() != 1 || cache.Loads() != 1 {
				extra++
			}
			_ = cache.Close()
			for i := 0; i < int(builder.builds.Load()); i++ {
				if !builder.handle(i).closed.Load() {
					leaked++
				}
			}
		}

		Convey("Then every trial builds exactly once and Close releases every handle", func() {
			So(extra, ShouldEqual, 0)
			So(leaked, ShouldEqual, 0)
		})
	})
}
