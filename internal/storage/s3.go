// Package storage provides the S3 blob store documents are uploaded to
// before ingestion. Objects are addressed by s3://bucket/key URIs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/paperquery/paperquery/internal/config"
)

// Uploader is the slice of manager.Uploader the blob store consumes.
type Uploader interface {
	Upload(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Downloader is the slice of manager.Downloader the blob store consumes.
type Downloader interface {
	Download(ctx context.Context, w io.WriterAt, params *s3.GetObjectInput, optFns ...func(*manager.Downloader)) (int64, error)
}

// BlobStore writes and reads document blobs in one S3 bucket.
type BlobStore struct {
	uploader   Uploader
	downloader Downloader
	bucket     string
	keyPrefix  string
}

// NewBlobStore creates a blob store around existing uploader/downloader
// implementations.
func NewBlobStore(uploader Uploader, downloader Downloader, bucket, keyPrefix string) *BlobStore {
	if keyPrefix == "" {
		keyPrefix = "uploads"
	}
	return &BlobStore{
		uploader:   uploader,
		downloader: downloader,
		bucket:     bucket,
		keyPrefix:  keyPrefix,
	}
}

// NewS3BlobStore creates a blob store backed by a real S3 client.
func NewS3BlobStore(ctx context.Context, cfg config.StorageConfig) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage.bucket is required")
	}

	options := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		// Custom endpoint for LocalStack and other S3-compatible stores.
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	return NewBlobStore(manager.NewUploader(client), manager.NewDownloader(client), cfg.Bucket, cfg.KeyPrefix), nil
}

// Put uploads data under a fresh key derived from name and returns the
// object's s3:// URI.
func (b *BlobStore) Put(ctx context.Context, name string, data []byte, mime string) (string, error) {
	key := fmt.Sprintf("%s/%s-%s", b.keyPrefix, uuid.New(), path.Base(name))

	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, key), nil
}

// Get reads the object bytes back by its s3:// URI.
func (b *BlobStore) Get(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	buf := manager.NewWriteAtBuffer(nil)
	_, err = b.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", uri, err)
	}
	return buf.Bytes(), nil
}

// ParseURI splits an s3://bucket/key URI into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid blob URI %q: missing s3:// scheme", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid blob URI %q: want s3://bucket/key", uri)
	}
	return bucket, key, nil
}
