// Package storage defines the blob storage collaborator contract and a local
// filesystem implementation. All durable task state lives behind this
// interface so the pipeline survives process restarts.
package storage

import (
	"fmt"
	"path"
)

// Store is the blob storage contract. Keys are slash-separated relative
// paths. Put returns a backend-specific URL for the stored blob.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) (string, error)
	Delete(key string) error
	Exists(key string) bool
}

// Well-known blob names within a task's prefix.
const (
	BlobOriginalPDF     = "original.pdf"
	BlobTranslatedPDF   = "translated.pdf"
	BlobTranslationData = "translation_data.json"
	BlobPositionData    = "position_data.json"
	BlobTaskRecord      = "task.json"
)

// TaskKey builds the storage key for a named blob of a task.
func TaskKey(taskID, name string) string {
	return path.Join("tasks", taskID, name)
}

// RasterKey builds the storage key for a cached page raster. Rasters are
// cached per task so edit-triggered regeneration skips re-rasterization.
func RasterKey(taskID string, pageNumber int) string {
	return path.Join("tasks", taskID, "raster", fmt.Sprintf("page_%d.jpg", pageNumber))
}
