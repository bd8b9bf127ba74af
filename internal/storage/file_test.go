package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFileStorePutGet(t *testing.T) {
	s := newTestStore(t)

	url, err := s.Put("tasks/abc/original.pdf", []byte("%PDF-1.7 test"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	data, err := s.Get("tasks/abc/original.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7 test"), data)
}

func TestFileStoreGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("tasks/missing/task.json")
	assert.Error(t, err)
}

func TestFileStoreOverwrite(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put("k", []byte("one"))
	require.NoError(t, err)
	_, err = s.Put("k", []byte("two"))
	require.NoError(t, err)

	data, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestFileStorePutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = s.Put("tasks/abc/task.json", []byte(`{"id":"abc"}`))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "tasks", "abc"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".put-"), "temp file left behind: %s", e.Name())
	}
}

func TestFileStoreDelete(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put("k", []byte("v"))
	require.NoError(t, err)
	assert.True(t, s.Exists("k"))

	require.NoError(t, s.Delete("k"))
	assert.False(t, s.Exists("k"))

	// Deleting again is not an error.
	assert.NoError(t, s.Delete("k"))
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	s := newTestStore(t)

	for _, key := range []string{"../outside", "/etc/passwd", ""} {
		_, err := s.Put(key, []byte("x"))
		assert.Error(t, err, "key %q should be rejected", key)
	}
}

func TestTaskKeys(t *testing.T) {
	assert.Equal(t, "tasks/abc/original.pdf", TaskKey("abc", BlobOriginalPDF))
	assert.Equal(t, "tasks/abc/translation_data.json", TaskKey("abc", BlobTranslationData))
	assert.Equal(t, "tasks/abc/raster/page_0.jpg", RasterKey("abc", 0))
	assert.Equal(t, "tasks/abc/raster/page_12.jpg", RasterKey("abc", 12))
}
