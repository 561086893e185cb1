package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sigcomply/compdef-cli/internal/core/digest"
)

// LocalBackend implements storage using the local filesystem.
type LocalBackend struct {
	config *LocalConfig
	path   string
}

// NewLocalBackend creates a new local storage backend.
func NewLocalBackend(cfg *LocalConfig) *LocalBackend {
	return &LocalBackend{
		config: cfg,
		path:   cfg.Path,
	}
}

// Name returns the backend identifier.
func (b *LocalBackend) Name() string {
	return "local"
}

// Init creates the output directory.
func (b *LocalBackend) Init(_ context.Context) error {
	if strings.HasPrefix(b.path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		b.path = filepath.Join(home, b.path[2:])
	}

	if err := os.MkdirAll(b.path, 0750); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	return nil
}

func (b *LocalBackend) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("path %q escapes the storage directory", path)
	}
	return filepath.Join(b.path, clean), nil
}

// Exists reports whether a file exists at path.
func (b *LocalBackend) Exists(_ context.Context, path string) (bool, error) {
	full, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

// Put writes data to a temporary file in the target directory and renames it
// into place.
func (b *LocalBackend) Put(ctx context.Context, path string, data []byte, opts *PutOptions) (*StoredItem, error) {
	if opts == nil {
		opts = &PutOptions{}
	}

	full, err := b.resolve(path)
	if err != nil {
		return nil, err
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

	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(full, data); err != nil {
		return nil, err
	}

	return &StoredItem{
		Path:        filepath.ToSlash(path),
		Hash:        digest.Bytes(data),
		Size:        int64(len(data)),
		StoredAt:    time.Now().UTC(),
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
	}, nil
}

func writeAtomic(full string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	// generated documents are shared artifacts
	if err = os.Chmod(tmp.Name(), 0644); err != nil { //nolint:gosec // readable output
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err = os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// List returns stored items matching the filter.
func (b *LocalBackend) List(_ context.Context, filter *ListFilter) ([]StoredItem, error) {
	var items []StoredItem

	searchPath := b.path
	if filter != nil && filter.Prefix != "" {
		searchPath = filepath.Join(b.path, filepath.FromSlash(filter.Prefix))
	}

	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info.IsDir() {
			return nil //nolint:nilerr // intentionally skip errors for inaccessible files
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		item, skip := b.processListItem(path, info, filter)
		if skip {
			return nil
		}
		items = append(items, *item)

		if filter != nil && filter.Limit > 0 && len(items) >= filter.Limit {
			return filepath.SkipAll
		}
		return nil
	})

	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return items, nil
}

// processListItem processes a single file for listing.
// Returns the item and whether to skip it.
func (b *LocalBackend) processListItem(path string, info os.FileInfo, filter *ListFilter) (*StoredItem, bool) {
	relPath, err := filepath.Rel(b.path, path)
	if err != nil {
		return nil, true
	}

	modTime := info.ModTime()
	if filter != nil {
		if !filter.After.IsZero() && modTime.Before(filter.After) {
			return nil, true
		}
		if !filter.Before.IsZero() && modTime.After(filter.Before) {
			return nil, true
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, true
	}

	return &StoredItem{
		Path:     filepath.ToSlash(relPath),
		Hash:     digest.Bytes(data),
		Size:     info.Size(),
		StoredAt: modTime,
	}, false
}

// Get retrieves a stored item by path.
func (b *LocalBackend) Get(_ context.Context, path string) ([]byte, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Close closes the local storage backend (no-op for local).
func (b *LocalBackend) Close() error {
	return nil
}

// GetPath returns the base path for the local backend.
func (b *LocalBackend) GetPath() string {
	return b.path
}
