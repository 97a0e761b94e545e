package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/motionscore/internal/domain/types"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body, tagged with requestID.
func (c *HTTPClient) Post(ctx context.Context, url, requestID string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	return c.client.Do(req)
}

// submitClips submits clips concurrently using a worker pool. Results keep
// the order of clips.
func submitClips(ctx context.Context, config *Config, clips []Clip, stats *Stats) []Result {
	log.Printf("submitting %d clips with %d workers...", len(clips), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/predict"
	results := make([]Result, len(clips))

	var submitted, successful, failed int64
	var lastReport atomic.Int64
	reportInterval := time.Second

	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexChan {
				if ctx.Err() != nil {
					return
				}
				res := submitSingleClip(ctx, client, url, clips[index])
				results[index] = res

				total := atomic.AddInt64(&submitted, 1)
				if res.OK() {
					atomic.AddInt64(&successful, 1)
				} else {
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Printf("clip %s failed: status=%d err=%s", res.ClipID, res.Status, res.Error)
					}
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if time.Duration(now-last) >= reportInterval && lastReport.CompareAndSwap(last, now) {
					log.Printf("progress: %d/%d submitted (success: %d, failed: %d)",
						total, len(clips), atomic.LoadInt64(&successful), atomic.LoadInt64(&failed))
				}
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := range clips {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(atomic.LoadInt64(&submitted))
	stats.Successful = int(atomic.LoadInt64(&successful))
	stats.Failed = int(atomic.LoadInt64(&failed))

	log.Printf("clip submission completed: successful=%d failed=%d", stats.Successful, stats.Failed)
	return results
}

// submitSingleClip posts one clip and decodes the score.
func submitSingleClip(ctx context.Context, client *HTTPClient, url string, clip Clip) Result {
	res := Result{ClipID: clip.ID, Frames: len(clip.Request.Keypoints)}
	start := time.Now()

	resp, err := client.Post(ctx, url, clip.ID, clip.Request)
	res.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if resp.StatusCode != StatusOK {
		res.Error = string(bytes.TrimSpace(body))
		return res
	}

	var score types.ScoreResponse
	if err := json.Unmarshal(body, &score); err != nil {
		res.Error = fmt.Sprintf("decode response: %v", err)
		return res
	}
	res.Response = score
	return res
}
