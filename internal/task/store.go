package task

import (
	"encoding/json"
	"sync"
	"time"

	"pdf-translator/internal/storage"
	"pdf-translator/internal/types"
)

// Store persists task records and their translation/position snapshots on a
// blob store. All writes go through a single mutex so concurrent page
// workers can publish results without clobbering each other; every write is
// a full-document atomic replace underneath.
type Store struct {
	mu    sync.Mutex
	blobs storage.Store
}

// NewStore creates a Store over the given blob store.
func NewStore(blobs storage.Store) *Store {
	return &Store{blobs: blobs}
}

// SaveTask persists the task record.
func (s *Store) SaveTask(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(storage.TaskKey(t.ID, storage.BlobTaskRecord), t)
}

// GetTask loads a task record. A missing task surfaces as a storage error.
func (s *Store) GetTask(taskID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Task
	if err := s.getJSON(storage.TaskKey(taskID, storage.BlobTaskRecord), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask loads the task, applies fn and saves the result atomically with
// respect to other store writers.
func (s *Store) UpdateTask(taskID string, fn func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Task
	key := storage.TaskKey(taskID, storage.BlobTaskRecord)
	if err := s.getJSON(key, &t); err != nil {
		return nil, err
	}
	fn(&t)
	if err := s.putJSON(key, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Transition moves the task to a new status, enforcing the state machine.
func (s *Store) Transition(taskID string, to Status, fn func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Task
	key := storage.TaskKey(taskID, storage.BlobTaskRecord)
	if err := s.getJSON(key, &t); err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, to) {
		return nil, types.NewValidationError(
			"invalid status transition "+string(t.Status)+" -> "+string(to), nil)
	}
	t.Status = to
	if to == StatusCompleted || to == StatusFailed {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	if fn != nil {
		fn(&t)
	}
	if err := s.putJSON(key, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTranslationData persists the full translation snapshot.
func (s *Store) SaveTranslationData(taskID string, data *TranslationData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(storage.TaskKey(taskID, storage.BlobTranslationData), data)
}

// GetTranslationData loads the translation snapshot.
func (s *Store) GetTranslationData(taskID string) (*TranslationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data TranslationData
	if err := s.getJSON(storage.TaskKey(taskID, storage.BlobTranslationData), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SavePageTranslation merges one page's translations into the stored
// snapshot. Only the given page is replaced, so a later page failing can
// never lose an earlier page's persisted results.
func (s *Store) SavePageTranslation(taskID string, page PageTranslation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.TaskKey(taskID, storage.BlobTranslationData)
	var data TranslationData
	if s.blobs.Exists(key) {
		if err := s.getJSON(key, &data); err != nil {
			return err
		}
	}
	data.SetPage(page)
	return s.putJSON(key, &data)
}

// InitTranslationData writes an empty snapshot carrying the task metadata,
// so page merges land in a record that already knows its language and model.
func (s *Store) InitTranslationData(taskID, targetLanguage, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(storage.TaskKey(taskID, storage.BlobTranslationData), &TranslationData{
		TaskID:         taskID,
		TargetLanguage: targetLanguage,
		Model:          model,
		Pages:          []PageTranslation{},
	})
}

// SavePositionData persists region geometry for all pages.
func (s *Store) SavePositionData(taskID string, data *PositionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(storage.TaskKey(taskID, storage.BlobPositionData), data)
}

// GetPositionData loads region geometry.
func (s *Store) GetPositionData(taskID string) (*PositionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data PositionData
	if err := s.getJSON(storage.TaskKey(taskID, storage.BlobPositionData), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *Store) putJSON(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return types.NewStorageError("failed to encode "+key, err)
	}
	if _, err := s.blobs.Put(key, data); err != nil {
		return err
	}
	return nil
}

func (s *Store) getJSON(key string, v any) error {
	data, err := s.blobs.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return types.NewStorageError("failed to decode "+key, err)
	}
	return nil
}
