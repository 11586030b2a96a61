package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/xitongsys/parquet-go/source"
	"golang.org/x/time/rate"

	appconfig "catalogflow/config"
	"catalogflow/logger"
	"catalogflow/models"
)

// ObjectClient is the subset of the S3 API used to fetch source objects.
type ObjectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source fetches whole parquet objects into memory. Parquet readers seek
// to the footer first and then to each column chunk, so ranged reads over
// the network would cost one request per chunk.
type S3Source struct {
	client  ObjectClient
	limiter *rate.Limiter
	log     *logger.Log
}

// NewS3Source wraps client. limiter may be nil.
func NewS3Source(client ObjectClient, limiter *rate.Limiter) *S3Source {
	return &S3Source{client: client, limiter: limiter, log: logger.GetLogger()}
}

// NewS3Client builds an S3 client from the S3 settings. Static credentials
// are used when both keys are set; otherwise the default AWS chain applies.
func NewS3Client(ctx context.Context, cfg appconfig.S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// NewS3SourceFromConfig builds an S3 source from the reader's S3 settings.
func NewS3SourceFromConfig(ctx context.Context, cfg appconfig.S3Config) (*S3Source, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return NewS3Source(client, limiter), nil
}

// ParseS3Path splits s3://bucket/key into its parts.
func ParseS3Path(path string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(path, "s3://")
	if rest == path {
		return "", "", fmt.Errorf("not an s3 path: %q", path)
	}
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", fmt.Errorf("s3 path %q must be s3://bucket/key", path)
	}
	return rest[:idx], rest[idx+1:], nil
}

// Fetch downloads the object at path and returns it as a parquet file.
func (s *S3Source) Fetch(ctx context.Context, path string) (source.ParquetFile, error) {
	bucket, key, err := ParseS3Path(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s: object not found", models.ErrSourceUnavailable, path)
		}
		return nil, fmt.Errorf("%w: get %s: %v", models.ErrSourceUnavailable, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrSourceUnavailable, path, err)
	}
	s.log.WithComponent("s3_source").WithFields(logger.Fields{
		"bucket": bucket,
		"key":    key,
		"bytes":  len(data),
	}).Debug("fetched source object")
	return newMemFile(data), nil
}
