package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sigcomply/compdef-cli/internal/core/digest"
	"github.com/sigcomply/compdef-cli/internal/core/result"
)

// Manifest records one generate run: the document it wrote and what changed.
type Manifest struct {
	RunID     string    `json:"run_id"`
	Task      string    `json:"task"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`

	// Document is the component definition written by the run, nil when the
	// run was simulated.
	Document *StoredItem `json:"document,omitempty"`

	// ContentDigest is the canonical JSON digest of the document, stable
	// across whitespace and key-order differences.
	ContentDigest string `json:"content_digest,omitempty"`

	Changes   result.Changes `json:"changes"`
	Items     []StoredItem   `json:"items"`
	TotalSize int64          `json:"total_size"`
}

// ManifestBuilder helps construct a run manifest.
type ManifestBuilder struct {
	manifest *Manifest
	backend  Backend
	path     *RunPath
}

// NewManifestBuilder creates a new manifest builder.
func NewManifestBuilder(backend Backend, task string) *ManifestBuilder {
	now := time.Now().UTC()
	runID := uuid.New().String()
	return &ManifestBuilder{
		manifest: &Manifest{
			RunID:     runID,
			Task:      task,
			Timestamp: now,
			Backend:   backend.Name(),
			Items:     []StoredItem{},
		},
		backend: backend,
		path:    NewRunPath(task, now, runID),
	}
}

// WithRunID sets a custom run ID.
func (b *ManifestBuilder) WithRunID(runID string) *ManifestBuilder {
	b.manifest.RunID = runID
	b.path.RunID = runID
	return b
}

// RunPath returns where this run's records are stored.
func (b *ManifestBuilder) RunPath() *RunPath {
	return b.path
}

// SetDocument records the written document and its canonical digest.
func (b *ManifestBuilder) SetDocument(item *StoredItem, contentDigest string) {
	b.manifest.Document = item
	b.manifest.ContentDigest = contentDigest
	b.AddItem(item)
}

// SetChanges records the reconciliation summary.
func (b *ManifestBuilder) SetChanges(changes *result.Changes) {
	if changes != nil {
		b.manifest.Changes = *changes
	}
}

// AddItem adds a stored item to the manifest.
func (b *ManifestBuilder) AddItem(item *StoredItem) {
	b.manifest.Items = append(b.manifest.Items, *item)
	b.manifest.TotalSize += item.Size
}

// Build finalizes and returns the manifest.
func (b *ManifestBuilder) Build() *Manifest {
	return b.manifest
}

// Store saves the manifest through the backend.
func (b *ManifestBuilder) Store(ctx context.Context) (*StoredItem, error) {
	data, err := json.MarshalIndent(b.manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	item, err := b.backend.Put(ctx, b.path.ManifestPath(), data, &PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"type":   "manifest",
			"run_id": b.manifest.RunID,
			"task":   b.manifest.Task,
		},
		Overwrite: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store manifest: %w", err)
	}
	return item, nil
}

// StoreDocument writes a generated document and records it in the manifest.
func (b *ManifestBuilder) StoreDocument(ctx context.Context, path string, data []byte, overwrite bool) (*StoredItem, error) {
	canonical, err := digest.CanonicalizeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to digest document: %w", err)
	}

	item, err := b.backend.Put(ctx, path, data, &PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"type":   "component-definition",
			"run_id": b.manifest.RunID,
		},
		Overwrite: overwrite,
	})
	if err != nil {
		return nil, err
	}

	b.SetDocument(item, digest.Bytes(canonical))
	return item, nil
}

// LoadManifest loads a manifest from storage.
func LoadManifest(ctx context.Context, backend Backend, path string) (*Manifest, error) {
	data, err := backend.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &manifest, nil
}
