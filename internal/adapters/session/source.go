package session

import (
	"context"

	"github.com/okian/motionscore/internal/domain/model"
)

// ModelConfig locates a model artifact and, optionally, its expected
// SHA-256 hex digest.
type ModelConfig struct {
	URI    string
	SHA256 string
}

// Source yields the model configuration to load. It is consulted once per
// load cycle, never on the cached path.
type Source interface {
	ModelConfig(ctx context.Context) (ModelConfig, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (ModelConfig, error)

// ModelConfig implements Source.
func (f SourceFunc) ModelConfig(ctx context.Context) (ModelConfig, error) { return f(ctx) }

// StaticSource always yields cfg.
func StaticSource(cfg ModelConfig) Source {
	return SourceFunc(func(context.Context) (ModelConfig, error) { return cfg, nil })
}

// Fetcher reads model bytes from a URI.
type Fetcher interface {
	Load(ctx context.Context, uri string) ([]byte, error)
}

// Builder turns model bytes into a runnable handle.
type Builder interface {
	Build(ctx context.Context, data []byte) (model.Handle, error)
}
