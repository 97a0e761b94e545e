// Package loadgen drives a running scoring service with random clips and
// checks that every score it returns is within bounds.
package loadgen

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/motionscore/internal/domain/types"
)

// Sentinel errors.
var (
	ErrInvalidConfig = errors.New("invalid load test config")
	ErrOutOfBounds   = errors.New("score out of bounds")
	ErrNotReady      = errors.New("service not ready")
)

// Config holds configuration for a load run
type Config struct {
	BaseURL    string        // Base URL of the service
	NumClips   int           // Number of clips to generate
	MinLen     int           // Shortest clip, in frames
	MaxLen     int           // Longest clip, in frames
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Optional JSON file for per-clip results
	Verbose    bool          // Enable verbose logging
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: url must not be empty", ErrInvalidConfig)
	case c.NumClips < 1:
		return fmt.Errorf("%w: clips must be at least 1", ErrInvalidConfig)
	case c.MinLen < 1 || c.MaxLen < c.MinLen:
		return fmt.Errorf("%w: need 1 <= min-len <= max-len, got %d..%d", ErrInvalidConfig, c.MinLen, c.MaxLen)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Clip is one generated request.
type Clip struct {
	ID      string               `json:"id"`
	Request types.PredictRequest `json:"request"`
}

// Result records the outcome of submitting one clip.
type Result struct {
	ClipID    string              `json:"clip_id"`
	Frames    int                 `json:"frames"`
	Status    int                 `json:"status"`
	Response  types.ScoreResponse `json:"response"`
	LatencyMS float64             `json:"latency_ms"`
	Error     string              `json:"error,omitempty"`
}

// OK reports whether the service answered 200.
func (r Result) OK() bool { return r.Status == StatusOK && r.Error == "" }

// Stats holds run statistics
type Stats struct {
	ClipsGenerated int
	Submitted      int
	Successful     int
	Failed         int
	OutOfBounds    int
	MinScore       int
	MaxScore       int
	MeanScore      float64
	MeanLatencyMS  float64
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
