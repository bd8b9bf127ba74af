package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// FileStore is a Store backed by a local directory tree.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore rooted at baseDir, creating the directory
// if necessary.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, types.NewValidationError("storage base directory is empty", nil)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		logger.Error("failed to create storage directory", err, logger.String("dir", baseDir))
		return nil, types.NewStorageError("failed to initialize storage", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Get reads a blob.
func (s *FileStore) Get(key string) ([]byte, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewStorageError(fmt.Sprintf("blob not found: %s", key), err)
		}
		logger.Error("failed to read blob", err, logger.String("key", key))
		return nil, types.NewStorageError("failed to read blob", err)
	}
	return data, nil
}

// Put writes a blob atomically: data is written to a temp file in the target
// directory and renamed into place, so a crash never leaves a partial blob.
func (s *FileStore) Put(key string, data []byte) (string, error) {
	p, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create blob directory", err, logger.String("dir", dir))
		return "", types.NewStorageError("failed to write blob", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		logger.Error("failed to create temp file", err, logger.String("key", key))
		return "", types.NewStorageError("failed to write blob", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		logger.Error("failed to write blob data", err, logger.String("key", key))
		return "", types.NewStorageError("failed to write blob", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", types.NewStorageError("failed to write blob", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		logger.Error("failed to finalize blob", err, logger.String("key", key))
		return "", types.NewStorageError("failed to write blob", err)
	}

	return "file://" + p, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *FileStore) Delete(key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		logger.Error("failed to delete blob", err, logger.String("key", key))
		return types.NewStorageError("failed to delete blob", err)
	}
	return nil
}

// Exists reports whether a blob is present.
func (s *FileStore) Exists(key string) bool {
	p, err := s.resolve(key)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(p)
	return statErr == nil
}

// resolve maps a key to an absolute path, rejecting traversal outside the
// base directory.
func (s *FileStore) resolve(key string) (string, error) {
	if key == "" {
		return "", types.NewValidationError("empty storage key", nil)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", types.NewValidationError(fmt.Sprintf("invalid storage key: %s", key), nil)
	}
	return filepath.Join(s.baseDir, clean), nil
}
