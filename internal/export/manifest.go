// Package export writes the small sidecar manifest that accompanies a
// persisted document blob on disk, recording enough metadata (heads,
// watermark, actor) that a reader can sanity-check a save without
// decoding the blob itself.
//
// Adapted from the teacher's export manifest writer: same atomic
// temp-file-then-rename write and 0600 permissions, retargeted from an
// issue-export completeness record (ExportedAt/ErrorPolicy/Complete) to
// a document-store save record (SavedAt/Actor/Heads/Watermark).
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manifest describes one Save or SaveIncremental call's resulting blob.
type Manifest struct {
	SavedAt     time.Time `json:"saved_at"`
	Actor       string    `json:"actor"`
	Heads       []string  `json:"heads"`
	Watermark   int       `json:"watermark"`
	Incremental bool      `json:"incremental"`
}

// WriteManifest writes manifest alongside blobPath, atomically, as
// "<blobPath without its extension>.manifest.json".
func WriteManifest(blobPath string, manifest *Manifest) error {
	manifestPath := manifestPathFor(blobPath)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	dir := filepath.Dir(manifestPath)
	base := filepath.Base(manifestPath)
	tempFile, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		_ = tempFile.Close()    // Best effort: may already be closed before rename
		_ = os.Remove(tempPath) // Best effort: cleanup temp file; may already be renamed
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	// Close before rename (required on Windows; double-close in defer is harmless)
	_ = tempFile.Close()

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to replace manifest file: %w", err)
	}

	if err := os.Chmod(manifestPath, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to set manifest permissions: %v\n", err)
	}

	return nil
}

// ReadManifest reads the manifest written alongside blobPath, if any.
func ReadManifest(blobPath string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPathFor(blobPath)) // #nosec G304 - derived from caller-controlled blobPath
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func manifestPathFor(blobPath string) string {
	ext := filepath.Ext(blobPath)
	return strings.TrimSuffix(blobPath, ext) + ".manifest.json"
}

// NewManifest creates a new save manifest for actor/heads/watermark.
func NewManifest(actor string, heads []string, watermark int, incremental bool) *Manifest {
	return &Manifest{
		SavedAt:     time.Now(),
		Actor:       actor,
		Heads:       heads,
		Watermark:   watermark,
		Incremental: incremental,
	}
}
