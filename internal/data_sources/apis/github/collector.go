// Package github fetches spreadsheet and component-definition inputs from
// GitHub repositories.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Scheme prefixes an input reference that names a file in a GitHub repository.
const Scheme = "github:"

// Client defines the interface for GitHub API operations.
type Client interface {
	GetContents(ctx context.Context, owner, repo, path string, opts *gh.RepositoryContentGetOptions) (*gh.RepositoryContent, []*gh.RepositoryContent, *gh.Response, error)
	DownloadContents(ctx context.Context, owner, repo, path string, opts *gh.RepositoryContentGetOptions) (io.ReadCloser, *gh.Response, error)
}

// APIClient wraps the go-github client to implement the Client interface.
type APIClient struct {
	client *gh.Client
}

// NewAPIClient creates a new API client wrapper.
func NewAPIClient(client *gh.Client) *APIClient {
	return &APIClient{client: client}
}

// GetContents gets a file's metadata and, below the API size limit, its content.
func (c *APIClient) GetContents(ctx context.Context, owner, repo, path string, opts *gh.RepositoryContentGetOptions) (*gh.RepositoryContent, []*gh.RepositoryContent, *gh.Response, error) {
	return c.client.Repositories.GetContents(ctx, owner, repo, path, opts)
}

// DownloadContents streams a file of any size.
func (c *APIClient) DownloadContents(ctx context.Context, owner, repo, path string, opts *gh.RepositoryContentGetOptions) (io.ReadCloser, *gh.Response, error) {
	return c.client.Repositories.DownloadContents(ctx, owner, repo, path, opts)
}

// Ref names a file in a repository, optionally at a branch, tag or commit.
type Ref struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

func (r Ref) String() string {
	s := Scheme + r.Owner + "/" + r.Repo + "/" + r.Path
	if r.Ref != "" {
		s += "@" + r.Ref
	}
	return s
}

// IsRef reports whether s uses the github: scheme.
func IsRef(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseRef parses "github:owner/repo/path/to/file@ref".
func ParseRef(s string) (Ref, error) {
	if !IsRef(s) {
		return Ref{}, fmt.Errorf("not a GitHub reference: %q", s)
	}
	rest := strings.TrimPrefix(s, Scheme)

	var r Ref
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		r.Ref = rest[at+1:]
		rest = rest[:at]
		if r.Ref == "" {
			return Ref{}, fmt.Errorf("empty ref in %q", s)
		}
	}

	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Ref{}, fmt.Errorf("GitHub reference %q must be github:owner/repo/path[@ref]", s)
	}
	r.Owner, r.Repo, r.Path = parts[0], parts[1], parts[2]
	return r, nil
}

// Fetcher reads files from GitHub.
type Fetcher struct {
	client Client
	token  string
}

// New creates a new GitHub Fetcher.
func New() *Fetcher {
	return &Fetcher{}
}

// WithToken sets the GitHub token.
func (f *Fetcher) WithToken(token string) *Fetcher {
	f.token = token
	return f
}

// Init initializes the GitHub client.
func (f *Fetcher) Init(ctx context.Context) error {
	token := f.token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	if token == "" {
		return errors.New("GitHub token not configured: set GITHUB_TOKEN environment variable")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	f.client = NewAPIClient(gh.NewClient(oauth2.NewClient(ctx, ts)))
	return nil
}

// InitWithClient initializes the fetcher with a pre-configured client (for testing).
func (f *Fetcher) InitWithClient(client Client) {
	f.client = client
}

// InitWithHTTPClient initializes the fetcher with a custom HTTP client.
func (f *Fetcher) InitWithHTTPClient(httpClient *http.Client) {
	f.client = NewAPIClient(gh.NewClient(httpClient))
}

// Fetch returns the content of the referenced file.
func (f *Fetcher) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if f.client == nil {
		return nil, errors.New("client not initialized: call Init() first")
	}

	var opts *gh.RepositoryContentGetOptions
	if ref.Ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: ref.Ref}
	}

	file, dir, _, err := f.client.GetContents(ctx, ref.Owner, ref.Repo, ref.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory with %d entries, not a file", ref, len(dir))
	}

	// files above the contents API limit come back with encoding "none"
	if file.GetEncoding() != "none" {
		content, err := file.GetContent()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", ref, err)
		}
		return []byte(content), nil
	}

	body, _, err := f.client.DownloadContents(ctx, ref.Owner, ref.Repo, ref.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", ref, err)
	}
	defer body.Close() //nolint:errcheck // closing response body, error is not actionable

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}
