package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sigcomply/compdef-cli/internal/core/digest"
)

// S3Client defines the S3 operations the backend uses.
type S3Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend implements storage using Amazon S3.
type S3Backend struct {
	cfg    *S3Config
	client S3Client
}

// NewS3Backend creates a new S3 storage backend.
func NewS3Backend(cfg *S3Config) *S3Backend {
	return &S3Backend{
		cfg: cfg,
	}
}

// WithClient sets the S3 client, skipping AWS config loading in Init.
func (b *S3Backend) WithClient(client S3Client) *S3Backend {
	b.client = client
	return b
}

// Name returns the backend identifier.
func (b *S3Backend) Name() string {
	return "s3"
}

// Init loads AWS configuration and verifies the bucket is reachable.
func (b *S3Backend) Init(ctx context.Context) error {
	if b.client == nil {
		var opts []func(*config.LoadOptions) error
		if b.cfg.Region != "" {
			opts = append(opts, config.WithRegion(b.cfg.Region))
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		b.client = s3.NewFromConfig(awsCfg)
	}

	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to access bucket %s: %w", b.cfg.Bucket, err)
	}

	return nil
}

// Exists reports whether an object exists at path.
func (b *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(path)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check S3 object: %w", err)
}

// Put uploads data at path. S3 replaces objects atomically.
func (b *S3Backend) Put(ctx context.Context, path string, data []byte, opts *PutOptions) (*StoredItem, error) {
	if opts == nil {
		opts = &PutOptions{}
	}

	if !opts.Overwrite {
		exists, err := b.Exists(ctx, path)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &ExistsError{Path: path}
		}
	}

	key := b.key(path)
	input := &s3.PutObjectInput{
		Bucket:   aws.String(b.cfg.Bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &StoredItem{
		Path:        key,
		Hash:        digest.Bytes(data),
		Size:        int64(len(data)),
		StoredAt:    time.Now().UTC(),
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
	}, nil
}

// List returns stored items matching the filter.
func (b *S3Backend) List(ctx context.Context, filter *ListFilter) ([]StoredItem, error) {
	var items []StoredItem

	prefix := b.cfg.Prefix
	if filter != nil && filter.Prefix != "" {
		prefix = b.key(filter.Prefix)
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.cfg.Bucket),
		Prefix: aws.String(prefix),
	}

	if filter != nil && filter.Limit > 0 {
		input.MaxKeys = aws.Int32(int32(filter.Limit)) //nolint:gosec // limit comes from configuration
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}

		for i := range page.Contents {
			item := convertS3Object(&page.Contents[i], filter)
			if item == nil {
				continue
			}
			items = append(items, *item)

			if filter != nil && filter.Limit > 0 && len(items) >= filter.Limit {
				return items, nil
			}
		}
	}

	return items, nil
}

// convertS3Object converts an S3 object to a StoredItem, applying filters.
// Returns nil if the object should be filtered out.
func convertS3Object(obj *types.Object, filter *ListFilter) *StoredItem {
	modified := aws.ToTime(obj.LastModified)
	if filter != nil {
		if !filter.After.IsZero() && modified.Before(filter.After) {
			return nil
		}
		if !filter.Before.IsZero() && modified.After(filter.Before) {
			return nil
		}
	}

	item := &StoredItem{
		Path:     aws.ToString(obj.Key),
		Size:     aws.ToInt64(obj.Size),
		StoredAt: modified,
	}

	// ETag can be used as hash for non-multipart uploads
	if obj.ETag != nil {
		item.Hash = strings.Trim(*obj.ETag, "\"")
	}

	return item
}

// Get retrieves a stored item by path.
func (b *S3Backend) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}
	defer out.Body.Close() //nolint:errcheck // closing response body, error is not actionable

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return data, nil
}

// Close closes the S3 storage backend (no-op).
func (b *S3Backend) Close() error {
	return nil
}

func (b *S3Backend) key(path string) string {
	return buildS3Key(b.cfg.Prefix, path)
}

// buildS3Key constructs an S3 key from path components.
func buildS3Key(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, strings.Trim(p, "/"))
		}
	}
	return strings.Join(nonEmpty, "/")
}
