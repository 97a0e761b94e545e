package loadgen

import (
	"context"
	"fmt"
	"log"
	"math"
)

// verifyResults checks every successful response against the score bounds
// and fills the score statistics.
func verifyResults(_ context.Context, config *Config, results []Result, stats *Stats) error {
	log.Println("verifying score bounds...")

	var (
		ok         int
		sumScore   float64
		sumLatency float64
	)
	stats.MinScore, stats.MaxScore = math.MaxInt, math.MinInt
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if !r.Response.InBounds() {
			stats.OutOfBounds++
			log.Printf("clip %s (%d frames) out of bounds: %+v", r.ClipID, r.Frames, r.Response)
			continue
		}
		ok++
		sumScore += float64(r.Response.Score)
		sumLatency += r.LatencyMS
		stats.MinScore = min(stats.MinScore, r.Response.Score)
		stats.MaxScore = max(stats.MaxScore, r.Response.Score)
	}
	if ok == 0 {
		stats.MinScore, stats.MaxScore = 0, 0
	} else {
		stats.MeanScore = sumScore / float64(ok)
		stats.MeanLatencyMS = sumLatency / float64(ok)
	}

	if config.Verbose {
		log.Printf("score statistics: min=%d max=%d mean=%.2f", stats.MinScore, stats.MaxScore, stats.MeanScore)
	}
	if stats.OutOfBounds > 0 {
		return fmt.Errorf("%w: %d of %d responses", ErrOutOfBounds, stats.OutOfBounds, stats.Successful)
	}
	log.Println("all scores within bounds")
	return nil
}
