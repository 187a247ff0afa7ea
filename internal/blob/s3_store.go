package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsretry "github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pinpincloud/internal/logging"
)

// S3Config configures an S3 compatible bucket (AWS, MinIO, R2)
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // empty uses the AWS endpoint for Region
	AccessKey string
	SecretKey string
}

// S3Store stores blobs as objects in one bucket
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3 client from static credentials
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Upload puts the object at pointer
func (s *S3Store) Upload(ctx context.Context, pointer string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(pointer),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return s.wrap("upload", pointer, err)
	}
	return nil
}

// Download gets the object at pointer
func (s *S3Store) Download(ctx context.Context, pointer string, maxBytes int64) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(pointer),
	})
	if err != nil {
		return nil, s.wrap("download", pointer, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > maxBytes {
		return nil, fmt.Errorf("download %s: %w", pointer, ErrTooLarge)
	}

	data, err := readLimited(out.Body, maxBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, fmt.Errorf("download %s: %w", pointer, err)
		}
		return nil, s.wrap("download", pointer, err)
	}
	return data, nil
}

// Delete removes the object at pointer
func (s *S3Store) Delete(ctx context.Context, pointer string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(pointer),
	})
	if err != nil {
		return s.wrap("delete", pointer, err)
	}
	return nil
}

// wrap attaches the matching sentinel to an SDK error
func (s *S3Store) wrap(op, pointer string, err error) error {
	sentinel := classifyS3(err)
	logging.WithFields(map[string]interface{}{
		"bucket":  s.bucket,
		"pointer": pointer,
		"op":      op,
	}).WithError(err).Debug("S3 request failed")

	if sentinel == nil {
		return fmt.Errorf("%s %s: %w", op, pointer, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, pointer, sentinel, err)
}

func classifyS3(err error) error {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrObjectNotFound
	}

	var maxAttempts *awsretry.MaxAttemptsError
	if errors.As(err, &maxAttempts) {
		return ErrRetryLimitExceeded
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return ErrObjectNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return ErrPermissionDenied
		case "RequestTimeout", "RequestTimeTooSkewed":
			return ErrTimeout
		}
	}

	switch Classify(err) {
	case KindTimeout:
		return ErrTimeout
	case KindNetwork:
		return ErrNetwork
	default:
		return nil
	}
}
