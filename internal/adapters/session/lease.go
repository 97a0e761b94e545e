package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/logger"
)

// entry is one loaded model. The cache owns one reference while the entry
// is current; each Lease owns another. The handle closes with the last one.
type entry struct {
	handle model.Handle
	digest string
	size   int
	refs   atomic.Int64
	logger logger.Logger
}

func newEntry(h model.Handle, digest string, size int, l logger.Logger) *entry {
	e := &entry{handle: h, digest: digest, size: size, logger: l}
	e.refs.Store(1)
	return e
}

func (e *entry) acquire() { e.refs.Add(1) }

func (e *entry) release() {
	if e.refs.Add(-1) != 0 {
		return
	}
	if err := e.handle.Close(); err != nil {
		e.logger.Warn(context.Background(), "closing model handle failed",
			logger.String("digest", e.digest), logger.Error(err))
		return
	}
	e.logger.Debug(context.Background(), "model handle closed", logger.String("digest", e.digest))
}

// Lease pins a loaded handle until Release.
type Lease struct {
	entry *entry
	once  sync.Once
}

// Handle returns the leased model. It must not be used after Release.
func (l *Lease) Handle() model.Handle { return l.entry.handle }

// Digest returns the SHA-256 of the leased model's bytes.
func (l *Lease) Digest() string { return l.entry.digest }

// Release drops the lease. Extra calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(l.entry.release)
}
