package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/motionscore/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run executes a complete load run and returns its statistics. It fails when
// the service is unhealthy or any score is out of bounds; individual request
// failures are counted, not fatal.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting motionscore load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("clips", config.NumClips),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Bool("verbose", config.Verbose))

	if err := checkServiceHealth(ctx, config); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	clips, err := generateClips(ctx, config, stats)
	if err != nil {
		return nil, fmt.Errorf("clip generation failed: %w", err)
	}

	results := submitClips(ctx, config, clips, stats)
	verifyErr := verifyResults(ctx, config, results, stats)

	if config.OutputFile != "" {
		if err := saveResultsToFile(ctx, config.OutputFile, results); err != nil {
			logger.Get().Warn(ctx, "failed to save results to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if verifyErr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verifyErr)
	}
	logger.Get().Info(ctx, "load run completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is alive and its model is loaded.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := client.Get(ctx, config.BaseURL+path)
		if err != nil {
			return fmt.Errorf("failed to connect to service: %w", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != StatusOK {
			return fmt.Errorf("%w: %s returned %d", ErrNotReady, path, resp.StatusCode)
		}
	}
	logger.Get().Info(ctx, "service is healthy and ready")
	return nil
}

// saveResultsToFile writes per-clip results as a JSON array.
func saveResultsToFile(ctx context.Context, filename string, results []Result) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	logger.Get().Info(ctx, "results saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var successRate, clipsPerSecond float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Successful) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		clipsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("clipsGenerated", stats.ClipsGenerated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("successful", stats.Successful),
		logger.Int("failed", stats.Failed),
		logger.Int("outOfBounds", stats.OutOfBounds),
		logger.Int("minScore", stats.MinScore),
		logger.Int("maxScore", stats.MaxScore),
		logger.Float64("meanScore", stats.MeanScore),
		logger.Float64("meanLatencyMs", stats.MeanLatencyMS),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("clipsPerSecond", clipsPerSecond))
}
