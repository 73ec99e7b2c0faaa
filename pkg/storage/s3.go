package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// maxDeleteBatch is the DeleteObjects per-request key limit.
const maxDeleteBatch = 1000

// S3Client is the part of the S3 API the cleaner calls.
type S3Client interface {
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Config locates the bucket holding tenant uploads.
// Endpoint and ForcePathStyle are for S3-compatible services such as MinIO.
type S3Config struct {
	Bucket         string `env:"S3_BUCKET"`
	Region         string `env:"S3_REGION"`
	AccessKeyID    string `env:"S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"S3_SECRET_KEY"`
	Endpoint       string `env:"S3_ENDPOINT"`
	ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// S3Cleaner removes rejected uploads from a bucket. It is safe for concurrent use.
type S3Cleaner struct {
	client S3Client
	bucket string
}

// S3Option configures NewS3Cleaner.
type S3Option func(*s3Setup)

type s3Setup struct {
	client  S3Client
	loaders []func(*config.LoadOptions) error
}

// WithS3Client uses client as is and skips AWS config loading.
func WithS3Client(client S3Client) S3Option {
	return func(s *s3Setup) { s.client = client }
}

// WithS3ConfigOption passes an extra option to config.LoadDefaultConfig,
// for example config.WithHTTPClient.
func WithS3ConfigOption(opt func(*config.LoadOptions) error) S3Option {
	return func(s *s3Setup) { s.loaders = append(s.loaders, opt) }
}

// NewS3Cleaner creates a cleaner for cfg.Bucket. Static credentials are used
// when both keys are set; otherwise the default AWS credential chain applies.
func NewS3Cleaner(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Cleaner, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: S3_BUCKET and S3_REGION are required", ErrInvalidConfig)
	}

	var setup s3Setup
	for _, opt := range opts {
		opt(&setup)
	}
	if setup.client != nil {
		return &S3Cleaner{client: setup.client, bucket: cfg.Bucket}, nil
	}

	client, err := newS3Client(ctx, cfg, setup.loaders)
	if err != nil {
		return nil, err
	}
	return &S3Cleaner{client: client, bucket: cfg.Bucket}, nil
}

func newS3Client(ctx context.Context, cfg S3Config, extra []func(*config.LoadOptions) error) (*s3.Client, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")
		loaders = append(loaders, config.WithCredentialsProvider(creds))
	}
	loaders = append(loaders, extra...)

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadConfig, err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// DeleteFiles removes the given object keys. A leading slash is ignored and
// missing keys count as deleted. Per-key failures are joined into one error
// after every batch has been sent; a request-level failure stops at once.
func (c *S3Cleaner) DeleteFiles(ctx context.Context, paths []string) error {
	ids := make([]types.ObjectIdentifier, len(paths))
	for i, p := range paths {
		key := strings.TrimPrefix(p, "/")
		if key == "" || strings.Contains(key, "..") {
			return fmt.Errorf("%w: %s", ErrInvalidPath, p)
		}
		ids[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	var errs []error
	for batch := range slices.Chunk(ids, maxDeleteBatch) {
		out, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return mapS3Error(err)
		}
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("%w: %s: %s %s", ErrFailedToDelete,
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
		}
	}
	return errors.Join(errs...)
}

// s3Codes maps S3 API error codes to package errors.
var s3Codes = map[string]error{
	"AccessDenied":       ErrAccessDenied,
	"NoSuchBucket":       ErrBucketNotFound,
	"SlowDown":           ErrServiceUnavailable,
	"ServiceUnavailable": ErrServiceUnavailable,
}

func mapS3Error(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrOperationTimeout, err)
	case errors.Is(err, context.Canceled):
		return errors.Join(ErrOperationCanceled, err)
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return errors.Join(ErrBucketNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if known, ok := s3Codes[apiErr.ErrorCode()]; ok {
			return errors.Join(known, err)
		}
	}
	return fmt.Errorf("delete objects: %w", err)
}
