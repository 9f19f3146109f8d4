package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sonarboard/sonarboard/internal/models"
	"go.uber.org/zap"
)

// ResponseStore handles saved response persistence. The request_id on
// each record is a weak reference into the request log; deleting log
// entries never cascades here.
type ResponseStore struct {
	store
	logger *zap.Logger
}

// NewResponseStore creates a saved response store rooted at dataDir
func NewResponseStore(dataDir string, logger *zap.Logger) *ResponseStore {
	s := &ResponseStore{logger: logger}
	s.init(dataDir, "saved_responses.json")
	return s
}

func (s *ResponseStore) load() ([]models.SavedResponse, error) {
	var responses []models.SavedResponse
	if err := s.readFile(&responses); err != nil {
		return nil, fmt.Errorf("failed to load saved responses: %w", err)
	}
	return responses, nil
}

func (s *ResponseStore) persist(responses []models.SavedResponse) error {
	if err := s.writeFile(responses); err != nil {
		return fmt.Errorf("failed to persist saved responses: %w", err)
	}
	return nil
}

// Save captures a response snapshot for later viewing and returns its id
func (s *ResponseStore) Save(requestID string, responseData json.RawMessage, promptName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	responses, err := s.load()
	if err != nil {
		return "", err
	}

	entry := models.SavedResponse{
		ID:           uuid.NewString(),
		RequestID:    requestID,
		PromptName:   promptName,
		SavedAt:      time.Now(),
		ResponseData: responseData,
	}

	responses = append(responses, entry)
	if err := s.persist(responses); err != nil {
		return "", err
	}

	s.logger.Debug("Saved response snapshot",
		zap.String("response_id", entry.ID),
		zap.String("request_id", requestID))

	return entry.ID, nil
}

// List returns all saved responses, newest first
func (s *ResponseStore) List() ([]models.SavedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	responses, err := s.load()
	if err != nil {
		return nil, err
	}

	sort.Slice(responses, func(i, j int) bool {
		return responses[i].SavedAt.After(responses[j].SavedAt)
	})
	return responses, nil
}

// Delete removes the saved response with the given id. Unknown ids are a
// no-op.
func (s *ResponseStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	responses, err := s.load()
	if err != nil {
		return err
	}

	kept := responses[:0]
	for _, r := range responses {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return s.persist(kept)
}
