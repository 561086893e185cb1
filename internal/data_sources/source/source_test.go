package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcomply/compdef-cli/internal/data_sources/apis/aws"
	"github.com/sigcomply/compdef-cli/internal/data_sources/apis/github"
)

type fakeFetcher struct {
	files map[string]string
	calls []github.Ref
}

func (f *fakeFetcher) Fetch(_ context.Context, ref github.Ref) ([]byte, error) {
	f.calls = append(f.calls, ref)
	data, ok := f.files[ref.Path]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	return []byte(data), nil
}

type fakeObjectFetcher struct {
	objects map[string]string
}

func (f *fakeObjectFetcher) Fetch(_ context.Context, ref aws.Ref) ([]byte, error) {
	data, ok := f.objects[ref.Bucket+"/"+ref.Key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return []byte(data), nil
}

func TestReader_Local(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rules.csv")
	require.NoError(t, os.WriteFile(p, []byte("a,b\n"), 0600))

	data, err := NewReader().Read(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	_, err = NewReader().Read(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestReader_GitHub(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"oscal/rules.csv": "x,y\n"}}
	r := NewReader().WithFetcher(fetcher)

	data, err := r.Read(context.Background(), "github:acme/controls/oscal/rules.csv@main")
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(data))
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, "main", fetcher.calls[0].Ref)

	_, err = r.Read(context.Background(), "github:acme/controls")
	assert.Error(t, err, "malformed reference")
}

func TestReader_GitHubWithoutToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")

	_, err := NewReader().Read(context.Background(), "github:acme/controls/rules.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
}

func TestReader_S3(t *testing.T) {
	r := NewReader().WithObjectFetcher(&fakeObjectFetcher{objects: map[string]string{"acme/oscal/rules.csv": "s,t\n"}})

	data, err := r.Read(context.Background(), "s3://acme/oscal/rules.csv")
	require.NoError(t, err)
	assert.Equal(t, "s,t\n", string(data))

	_, err = r.Read(context.Background(), "s3://acme/missing.csv")
	assert.Error(t, err)

	_, err = r.Read(context.Background(), "s3://acme")
	assert.Error(t, err, "malformed reference")
}

func TestName(t *testing.T) {
	assert.Equal(t, "rules.xlsx", Name("s3://acme/sheets/rules.xlsx?versionId=v2"))
	assert.Equal(t, "rules.xlsx", Name("github:acme/controls/sheets/rules.xlsx@v1"))
	assert.Equal(t, "rules.csv", Name(filepath.Join("data", "rules.csv")))
}
