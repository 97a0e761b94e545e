package modelstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures the gs:// fetcher. Zero values use Application Default
// Credentials against the public endpoint.
type GCSConfig struct {
	// Endpoint overrides the API endpoint, e.g. a local emulator. Requests to
	// a custom endpoint are sent unauthenticated.
	Endpoint string
	// CredentialsFile points at a service account key.
	CredentialsFile string
}

type gcsFetcher struct {
	cfg GCSConfig

	mu     sync.Mutex
	client *storage.Client
}

func newGCSFetcher(cfg GCSConfig) *gcsFetcher {
	return &gcsFetcher{cfg: cfg}
}

// clientFor creates the client on first use. A failed creation is not kept,
// so the next load retries.
func (f *gcsFetcher) clientFor(ctx context.Context) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}

	var opts []option.ClientOption
	if f.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.cfg.CredentialsFile))
	}
	if f.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	f.client = client
	return client, nil
}

func (f *gcsFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	client, err := f.clientFor(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read gcs object: %w", err)
	}
	return data, nil
}

func (f *gcsFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}
