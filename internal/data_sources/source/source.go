// Package source resolves input references to bytes. A reference is a local
// path, a github:owner/repo/path[@ref] file reference or an
// s3://bucket/key[?versionId=v] object reference.
package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/sigcomply/compdef-cli/internal/data_sources/apis/aws"
	"github.com/sigcomply/compdef-cli/internal/data_sources/apis/github"
)

// Fetcher reads a file from a GitHub repository.
type Fetcher interface {
	Fetch(ctx context.Context, ref github.Ref) ([]byte, error)
}

// ObjectFetcher reads an object from S3.
type ObjectFetcher interface {
	Fetch(ctx context.Context, ref aws.Ref) ([]byte, error)
}

// Reader reads local and remote inputs.
type Reader struct {
	github Fetcher
	s3     ObjectFetcher
	token  string
	region string
}

// NewReader creates a Reader. Remote clients are created on first use.
func NewReader() *Reader {
	return &Reader{}
}

// WithToken sets the GitHub token used for remote inputs.
func (r *Reader) WithToken(token string) *Reader {
	r.token = token
	return r
}

// WithRegion sets the AWS region used for S3 inputs.
func (r *Reader) WithRegion(region string) *Reader {
	r.region = region
	return r
}

// WithFetcher sets the GitHub fetcher.
func (r *Reader) WithFetcher(f Fetcher) *Reader {
	r.github = f
	return r
}

// WithObjectFetcher sets the S3 fetcher.
func (r *Reader) WithObjectFetcher(f ObjectFetcher) *Reader {
	r.s3 = f
	return r
}

// Read returns the content behind ref.
func (r *Reader) Read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case github.IsRef(ref):
		return r.readGitHub(ctx, ref)
	case aws.IsRef(ref):
		return r.readS3(ctx, ref)
	}

	data, err := os.ReadFile(ref) //nolint:gosec // path comes from the user's task configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

func (r *Reader) readGitHub(ctx context.Context, ref string) ([]byte, error) {
	parsed, err := github.ParseRef(ref)
	if err != nil {
		return nil, err
	}
	if r.github == nil {
		f := github.New().WithToken(r.token)
		if err := f.Init(ctx); err != nil {
			return nil, err
		}
		r.github = f
	}
	return r.github.Fetch(ctx, parsed)
}

func (r *Reader) readS3(ctx context.Context, ref string) ([]byte, error) {
	parsed, err := aws.ParseRef(ref)
	if err != nil {
		return nil, err
	}
	if r.s3 == nil {
		f := aws.New().WithRegion(r.region)
		if err := f.Init(ctx); err != nil {
			return nil, err
		}
		r.s3 = f
	}
	return r.s3.Fetch(ctx, parsed)
}

// Name returns the file name of ref, used to infer the input format.
func Name(ref string) string {
	if parsed, err := github.ParseRef(ref); err == nil {
		return path.Base(parsed.Path)
	}
	if parsed, err := aws.ParseRef(ref); err == nil {
		return path.Base(parsed.Key)
	}
	return filepath.Base(ref)
}
