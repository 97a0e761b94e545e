package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/motionscore/pkg/errkind"
)

const (
	envPrefix  = "MOTIONSCORE_"
	envFileVar = "MOTIONSCORE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if MOTIONSCORE_CONFIG is set
//  3. env (prefix MOTIONSCORE_)
func Load(_ context.Context) (*Config, error) {
	const op = "config.load"
	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errkind.Wrap(op, ErrLoadConfig, err)
		}
	}

	// MOTIONSCORE_MODEL_URI -> model_uri. Keys are flat, so underscores stay.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errkind.Wrap(op, ErrLoadConfig, err)
	}
	// The file variable is not a setting.
	k.Delete("config")

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errkind.Wrap(op, ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	const op = "config.validate"
	invalid := func(format string, args ...any) error {
		return errkind.Wrap(op, ErrInvalidConfig, fmt.Errorf(format, args...))
	}
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case strings.TrimSpace(c.ModelURI) == "":
		return invalid("model_uri must not be empty")
	case c.DefaultTargetLen < 1:
		return invalid("default_target_len must be at least 1, got %d", c.DefaultTargetLen)
	case c.MaxBodyBytes <= 0:
		return invalid("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	case c.BatchWorkers < 0:
		return invalid("batch_workers must not be negative, got %d", c.BatchWorkers)
	case c.BatchQueueSize < 1:
		return invalid("batch_queue_size must be at least 1, got %d", c.BatchQueueSize)
	case c.MaxBatchClips < 1:
		return invalid("max_batch_clips must be at least 1, got %d", c.MaxBatchClips)
	case c.ORTIntraOpThreads < 0:
		return invalid("ort_intra_op_threads must not be negative, got %d", c.ORTIntraOpThreads)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ModelSource reloads configuration and returns the model settings. The
// session cache calls it once per load cycle so a reload picks up changed
// MOTIONSCORE_MODEL_URI and MOTIONSCORE_MODEL_SHA256 values.
func ModelSource(ctx context.Context) (ModelSettings, error) {
	cfg, err := Load(ctx)
	if err != nil {
		return ModelSettings{}, err
	}
	return cfg.Model(), nil
}
