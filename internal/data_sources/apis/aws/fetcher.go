// Package aws fetches spreadsheet and component-definition inputs stored in
// Amazon S3.
package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Scheme prefixes an input reference that names an S3 object.
const Scheme = "s3://"

// S3Client defines the interface for S3 operations we use.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Ref names an S3 object, optionally at a specific version.
type Ref struct {
	Bucket    string
	Key       string
	VersionID string
}

func (r Ref) String() string {
	s := Scheme + r.Bucket + "/" + r.Key
	if r.VersionID != "" {
		s += "?versionId=" + url.QueryEscape(r.VersionID)
	}
	return s
}

// IsRef reports whether s uses the s3:// scheme.
func IsRef(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseRef parses "s3://bucket/path/to/key[?versionId=v]".
func ParseRef(s string) (Ref, error) {
	if !IsRef(s) {
		return Ref{}, fmt.Errorf("not an S3 reference: %q", s)
	}
	u, err := url.Parse(s)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid S3 reference %q: %w", s, err)
	}
	r := Ref{
		Bucket:    u.Host,
		Key:       strings.TrimPrefix(u.Path, "/"),
		VersionID: u.Query().Get("versionId"),
	}
	if r.Bucket == "" || r.Key == "" {
		return Ref{}, fmt.Errorf("invalid S3 reference %q: expected s3://bucket/key", s)
	}
	return r, nil
}

// Fetcher reads objects from S3.
type Fetcher struct {
	client S3Client
	region string
}

// New creates a Fetcher with auto-detected credentials.
func New() *Fetcher {
	return &Fetcher{}
}

// WithRegion sets the AWS region.
func (f *Fetcher) WithRegion(region string) *Fetcher {
	f.region = region
	return f
}

// Init loads AWS configuration and creates the S3 client.
func (f *Fetcher) Init(ctx context.Context) error {
	var opts []func(*awsconfig.LoadOptions) error
	if f.region != "" {
		opts = append(opts, awsconfig.WithRegion(f.region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	if f.region == "" {
		f.region = cfg.Region
	}
	f.client = s3.NewFromConfig(cfg)
	return nil
}

// InitWithClient initializes the fetcher with a custom client (for testing).
func (f *Fetcher) InitWithClient(client S3Client) {
	f.client = client
}

// Region returns the resolved region.
func (f *Fetcher) Region() string {
	return f.region
}

// Fetch returns the content of the object named by ref.
func (f *Fetcher) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if f.client == nil {
		return nil, errors.New("fetcher not initialized: call Init() first")
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	}
	if ref.VersionID != "" {
		input.VersionId = aws.String(ref.VersionID)
	}

	out, err := f.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%s: object not found", ref)
		}
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	defer out.Body.Close() //nolint:errcheck // closing response body, error is not actionable

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}
