package reliability

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Archiver stores an exported batch of risk events under key.
type Archiver interface {
	Archive(ctx context.Context, key string, body io.Reader) error
}

// Uploader is the subset of manager.Uploader used by S3Archiver
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver uploads archives to an S3-compatible bucket.
type S3Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Archiver creates an archiver using the default AWS credential chain
// (environment, shared config, instance role).
func NewS3Archiver(ctx context.Context, bucket, prefix string, log zerolog.Logger) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return NewS3ArchiverWithUploader(manager.NewUploader(client), bucket, prefix, log), nil
}

// NewS3ArchiverWithUploader creates an archiver around an existing uploader
func NewS3ArchiverWithUploader(uploader Uploader, bucket, prefix string, log zerolog.Logger) *S3Archiver {
	return &S3Archiver{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("service", "s3_archiver").Str("bucket", bucket).Logger(),
	}
}

// Archive uploads body to prefix/key
func (a *S3Archiver) Archive(ctx context.Context, key string, body io.Reader) error {
	objectKey := path.Join(a.prefix, key)

	out, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(objectKey),
		Body:            body,
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3: %w", objectKey, err)
	}

	a.log.Info().
		Str("key", objectKey).
		Str("location", out.Location).
		Msg("Archive uploaded")
	return nil
}
