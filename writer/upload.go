package writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"catalogflow/logger"
	"catalogflow/reader"
)

// ObjectPutter is the subset of the S3 API used to publish catalog files.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Upload stores an encoded catalog file at an s3://bucket/key path.
func Upload(ctx context.Context, client ObjectPutter, path string, data []byte, opts Options) error {
	bucket, key, err := reader.ParseS3Path(path)
	if err != nil {
		return err
	}
	log := logger.GetLogger().WithComponent("s3_writer").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"bucket":    bucket,
		"key":       key,
		"data_size": len(data),
	})

	compression := opts.Compression
	if compression == "" {
		compression = "snappy"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"compression":  compression,
		},
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", bucket, err)
	}

	log.Info("successfully uploaded to S3")
	return nil
}
