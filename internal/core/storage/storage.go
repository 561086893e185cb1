// Package storage writes generated documents and run records to a backend.
package storage

import (
	"context"
	"time"
)

// Backend defines the interface for output storage backends.
type Backend interface {
	// Name returns the backend identifier (e.g., "local", "s3").
	Name() string

	// Init prepares the backend for use.
	Init(ctx context.Context) error

	// Exists reports whether an item is stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Get retrieves a stored item by path.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put stores data at path. Readers never observe a partial write.
	Put(ctx context.Context, path string, data []byte, opts *PutOptions) (*StoredItem, error)

	// List returns stored items matching the filter.
	List(ctx context.Context, filter *ListFilter) ([]StoredItem, error)

	// Close releases backend resources.
	Close() error
}

// PutOptions controls a single Put.
type PutOptions struct {
	// ContentType is the MIME type recorded with the item.
	ContentType string

	// Metadata is stored alongside the item where the backend supports it.
	Metadata map[string]string

	// Overwrite allows replacing an existing item. Without it Put fails
	// with an ExistsError.
	Overwrite bool
}

// StoredItem represents an item stored in the backend.
type StoredItem struct {
	// Path is the storage path/key.
	Path string `json:"path"`

	// Hash is the SHA-256 hash of the stored content.
	Hash string `json:"hash"`

	// Size is the size in bytes.
	Size int64 `json:"size"`

	// StoredAt is when the item was stored.
	StoredAt time.Time `json:"stored_at"`

	// ContentType is the MIME type of the content.
	ContentType string `json:"content_type,omitempty"`

	// Metadata contains additional key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListFilter defines filtering options for listing stored items.
type ListFilter struct {
	// Prefix filters items by path prefix.
	Prefix string

	// After filters items stored after this time.
	After time.Time

	// Before filters items stored before this time.
	Before time.Time

	// Limit limits the number of results.
	Limit int
}

// Config holds storage configuration.
type Config struct {
	// Backend is the storage backend type (local, s3).
	Backend string `yaml:"backend" json:"backend"`

	// Local contains local storage configuration.
	Local *LocalConfig `yaml:"local,omitempty" json:"local,omitempty"`

	// S3 contains S3 storage configuration.
	S3 *S3Config `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// LocalConfig holds local storage configuration.
type LocalConfig struct {
	// Path is the output directory.
	Path string `yaml:"path" json:"path"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `yaml:"bucket" json:"bucket"`

	// Prefix is the key prefix for all stored items.
	Prefix string `yaml:"prefix" json:"prefix"`

	// Region is the AWS region.
	Region string `yaml:"region" json:"region"`
}

// NewBackend creates a storage backend based on configuration.
func NewBackend(cfg *Config) (Backend, error) {
	switch cfg.Backend {
	case "local", "":
		localCfg := cfg.Local
		if localCfg == nil {
			localCfg = &LocalConfig{Path: "."}
		}
		return NewLocalBackend(localCfg), nil
	case "s3":
		if cfg.S3 == nil || cfg.S3.Bucket == "" {
			return nil, &ConfigError{Message: "S3 configuration required"}
		}
		return NewS3Backend(cfg.S3), nil
	default:
		return nil, &ConfigError{Message: "unsupported storage backend: " + cfg.Backend}
	}
}

// ConfigError represents a storage configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "storage config error: " + e.Message
}

// NotFoundError is returned when a stored item is not found.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return "item not found: " + e.Path
}

// ExistsError is returned when Put would replace an item without Overwrite.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return "item already exists: " + e.Path
}
