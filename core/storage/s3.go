package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"iris/core/config"
	"iris/core/errors"
	"iris/core/logger"
)

// S3Store implements BlobStore against S3 or an S3-compatible endpoint.
type S3Store struct {
	client *s3.Client
}

// NewS3Store builds an S3 client from the AWS section of the configuration.
// A non-empty endpoint switches to path-style addressing for
// MinIO-compatible deployments; static credentials are only installed when
// both halves are configured, otherwise the default provider chain applies.
func NewS3Store(ctx context.Context, cfg config.AWSConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client}, nil
}

// Download fetches bucket/key to the local file at path. The destination is
// truncated first so a reused staging path never mixes runs.
func (s *S3Store) Download(ctx context.Context, bucket, key, path string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err, fmt.Sprintf("get %s/%s", bucket, key))
	}
	defer out.Body.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "open staging file")
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return errors.Wrap(err, "write staging file")
	}

	logger.Debug(ctx, "object downloaded",
		zap.String("bucket", bucket), zap.String("key", key), zap.String("path", path))
	return nil
}

// Upload stores the local file at path as bucket/key.
func (s *S3Store) Upload(ctx context.Context, bucket, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open upload file")
	}
	defer f.Close()

	return s.put(ctx, bucket, key, f, contentType)
}

// Put stores raw bytes as bucket/key.
func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	return s.put(ctx, bucket, key, bytes.NewReader(data), contentType)
}

func (s *S3Store) put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return classify(err, fmt.Sprintf("put %s/%s", bucket, key))
	}

	logger.Debug(ctx, "object uploaded", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}

// Delete removes bucket/key. S3 delete is idempotent: deleting an absent
// key succeeds, which is what the output-cleanup step relies on.
func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err, fmt.Sprintf("delete %s/%s", bucket, key))
	}
	return nil
}

// List returns up to max keys from the bucket.
func (s *S3Store) List(ctx context.Context, bucket string, max int32) ([]string, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(max),
	})
	if err != nil {
		return nil, classify(err, "list "+bucket)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}

// Exists reports whether bucket/key is present.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify(err, fmt.Sprintf("head %s/%s", bucket, key))
	}
	return true, nil
}

// classify maps SDK errors onto the application's error taxonomy: a missing
// object becomes ErrNotFound so the pipeline treats it as permanent, and
// everything else keeps its cause for transient handling.
func classify(err error, op string) error {
	if isNotFound(err) {
		return errors.Wrap(errors.ErrNotFound, op)
	}
	return errors.Wrap(err, op)
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	// HeadObject reports 404 without a modeled type on some S3-compatible
	// backends.
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404")
}
