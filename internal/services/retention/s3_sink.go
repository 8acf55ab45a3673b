package retention

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ternarybob/arbor"

	"github.com/scriptorium-dev/scriptorium/internal/common"
)

// S3Sink uploads archive batches to S3-compatible object storage. Works
// against AWS and against MinIO-style endpoints with path-style addressing.
type S3Sink struct {
	client *s3.Client
	bucket string
	logger arbor.ILogger
}

// NewS3Sink builds a sink from the archive configuration
func NewS3Sink(ctx context.Context, cfg common.S3Config, logger arbor.ILogger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// required for MinIO
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Sink{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Upload puts one archive object with its metadata
func (s *S3Sink) Upload(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	s.logger.Debug().Str("bucket", s.bucket).Str("key", key).Int("bytes", len(data)).Msg("Archive object uploaded")
	return nil
}
