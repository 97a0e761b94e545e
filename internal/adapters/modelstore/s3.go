package modelstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the s3:// fetcher. Without static keys the default AWS
// credential chain is used.
type S3Config struct {
	Region          string
	Endpoint        string // optional, e.g. MinIO
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

type s3Fetcher struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
}

func newS3Fetcher(cfg S3Config) *s3Fetcher {
	return &s3Fetcher{cfg: cfg}
}

func (f *s3Fetcher) clientFor(ctx context.Context) (*s3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if f.cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(f.cfg.Region))
	}
	if f.cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(f.cfg.AccessKeyID, f.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	f.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if f.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(f.cfg.Endpoint)
		}
		o.UsePathStyle = f.cfg.UsePathStyle
	})
	return f.client, nil
}

func (f *s3Fetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	client, err := f.clientFor(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object: %w", err)
	}
	return data, nil
}
