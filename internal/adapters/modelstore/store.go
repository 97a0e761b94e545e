// Package modelstore fetches model artifacts from local disk or object storage
// and verifies their integrity.
package modelstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/errkind"
	"github.com/okian/motionscore/pkg/logger"
)

// URI schemes understood out of the box.
const (
	SchemeFile = "file"
	SchemeGCS  = "gs"
	SchemeS3   = "s3"
)

// Location is a parsed model URI.
type Location struct {
	Scheme string
	Bucket string // object stores only
	Key    string // object stores only
	Path   string // local files only
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Path
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Fetcher reads the full artifact at a location.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, loc Location) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, loc Location) ([]byte, error) { return f(ctx, loc) }

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithFetcher registers or replaces the fetcher for a scheme.
func WithFetcher(scheme string, f Fetcher) Option {
	return func(s *Store) {
		if scheme != "" && f != nil {
			s.fetchers[strings.ToLower(scheme)] = f
		}
	}
}

// WithGCS configures the Google Cloud Storage fetcher.
func WithGCS(cfg GCSConfig) Option {
	return func(s *Store) {
		s.fetchers[SchemeGCS] = newGCSFetcher(cfg)
	}
}

// WithS3 configures the S3 fetcher.
func WithS3(cfg S3Config) Option {
	return func(s *Store) {
		s.fetchers[SchemeS3] = newS3Fetcher(cfg)
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store dispatches model fetches by URI scheme.
type Store struct {
	fetchers map[string]Fetcher
	logger   logger.Logger
}

// New creates a Store with local, GCS and S3 fetchers registered.
func New(opts ...Option) *Store {
	s := &Store{
		fetchers: map[string]Fetcher{
			SchemeFile: fileFetcher{},
			SchemeGCS:  newGCSFetcher(GCSConfig{}),
			SchemeS3:   newS3Fetcher(S3Config{}),
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the artifact addressed by uri. Unknown schemes and malformed
// URIs fail with model.ErrUnsupportedURI.
func (s *Store) Load(ctx context.Context, uri string) ([]byte, error) {
	const op = "modelstore.load"
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	f, ok := s.fetchers[loc.Scheme]
	if !ok {
		return nil, errkind.Wrap(op, model.ErrUnsupportedURI, fmt.Errorf("no fetcher for scheme %q", loc.Scheme))
	}

	start := time.Now()
	data, err := f.Fetch(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch %s: %w", op, loc, err)
	}
	s.logger.Info(ctx, "model artifact fetched",
		logger.String("uri", loc.String()),
		logger.Int("bytes", len(data)),
		logger.String("duration", time.Since(start).String()),
	)
	return data, nil
}

// Close releases remote clients held by fetchers.
func (s *Store) Close() error {
	var first error
	for _, f := range s.fetchers {
		if c, ok := f.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// ParseURI splits a model URI. Scheme-less strings are local paths.
func ParseURI(uri string) (Location, error) {
	const op = "modelstore.parse_uri"
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, errkind.Wrap(op, model.ErrUnsupportedURI, fmt.Errorf("empty uri"))
	}

	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		return Location{Scheme: SchemeFile, Path: uri}, nil
	}
	scheme = strings.ToLower(scheme)
	if scheme == SchemeFile {
		if rest == "" {
			return Location{}, errkind.Wrap(op, model.ErrUnsupportedURI, fmt.Errorf("empty path in %q", uri))
		}
		return Location{Scheme: SchemeFile, Path: rest}, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if scheme == "" || bucket == "" || key == "" {
		return Location{}, errkind.Wrap(op, model.ErrUnsupportedURI, fmt.Errorf("malformed object uri %q", uri))
	}
	return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
}
