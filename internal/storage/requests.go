package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sonarboard/sonarboard/internal/models"
	"go.uber.org/zap"
)

// RequestStore handles request log persistence. Every mutation is
// read-whole/modify/write-whole over a single JSON file; the mutex is held
// across the full cycle so concurrent writers cannot lose each other's
// entries.
type RequestStore struct {
	store
	logger *zap.Logger
}

// NewRequestStore creates a request log store rooted at dataDir
func NewRequestStore(dataDir string, logger *zap.Logger) *RequestStore {
	s := &RequestStore{logger: logger}
	s.init(dataDir, "api_requests.json")
	return s
}

func (s *RequestStore) load() ([]models.RequestLogEntry, error) {
	var entries []models.RequestLogEntry
	if err := s.readFile(&entries); err != nil {
		return nil, fmt.Errorf("failed to load request log: %w", err)
	}
	return entries, nil
}

func (s *RequestStore) persist(entries []models.RequestLogEntry) error {
	if err := s.writeFile(entries); err != nil {
		return fmt.Errorf("failed to persist request log: %w", err)
	}
	return nil
}

// LogRequest appends a new entry in status "sent" and returns its id for
// correlation with the eventual outcome.
func (s *RequestStore) LogRequest(req *models.ChatRequest, requestJSON string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", err
	}

	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[0].Content
	}

	entry := models.RequestLogEntry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Model:       req.Model,
		Prompt:      prompt,
		RequestJSON: requestJSON,
		Status:      models.StatusSent,
	}

	entries = append(entries, entry)
	if err := s.persist(entries); err != nil {
		return "", err
	}

	s.logger.Debug("Logged API request",
		zap.String("request_id", entry.ID),
		zap.String("model", entry.Model))

	return entry.ID, nil
}

// RecordSuccess resolves the entry to "completed" and fills the response
// fields. An unknown id, or an entry already resolved, is a silent no-op;
// status transitions never regress.
func (s *RequestStore) RecordSuccess(id string, resp *models.ChatResponse, responseJSON string, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		if entries[i].Status != models.StatusSent {
			s.logger.Warn("Ignoring success for resolved entry",
				zap.String("request_id", id),
				zap.String("status", entries[i].Status))
			return nil
		}

		entries[i].Status = models.StatusCompleted
		entries[i].ResponseJSON = responseJSON
		entries[i].ResponseID = resp.ID
		entries[i].ResponseContent = resp.Content()
		entries[i].DurationMs = &durationMs
		if resp.Usage != nil {
			entries[i].PromptTokens = intPtr(resp.Usage.PromptTokens)
			entries[i].CompletionTokens = intPtr(resp.Usage.CompletionTokens)
			entries[i].TotalTokens = intPtr(resp.Usage.TotalTokens)
		}
		if len(resp.SearchResults) > 0 {
			entries[i].SearchResults = resp.SearchResults
		}

		return s.persist(entries)
	}

	s.logger.Warn("RecordSuccess: request id not found", zap.String("request_id", id))
	return nil
}

// RecordError resolves the entry to "error". Same no-op rules as
// RecordSuccess.
func (s *RequestStore) RecordError(id string, message string, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		if entries[i].Status != models.StatusSent {
			s.logger.Warn("Ignoring error for resolved entry",
				zap.String("request_id", id),
				zap.String("status", entries[i].Status))
			return nil
		}

		entries[i].Status = models.StatusError
		entries[i].ErrorMessage = message
		entries[i].DurationMs = &durationMs

		return s.persist(entries)
	}

	s.logger.Warn("RecordError: request id not found", zap.String("request_id", id))
	return nil
}

// RecentRequests returns up to limit entries, newest first
func (s *RequestStore) RecentRequests(limit int) ([]models.RequestLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	sortByTimestampDesc(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RequestsByModel returns up to limit entries for one model, newest first
func (s *RequestStore) RequestsByModel(model string, limit int) ([]models.RequestLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	var filtered []models.RequestLogEntry
	for _, e := range entries {
		if e.Model == model {
			filtered = append(filtered, e)
		}
	}

	sortByTimestampDesc(filtered)
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// RequestByID returns the entry with the given id, or (nil, nil) when it
// does not exist. Dangling saved-response references land here and must
// resolve gracefully.
func (s *RequestStore) RequestByID(id string) (*models.RequestLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Clear empties the request log. Saved responses referencing cleared
// entries are untouched.
func (s *RequestStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist([]models.RequestLogEntry{})
}

// UsageStatistics recomputes the aggregate view over the full log on every
// call. O(n) per call; fine while the log stays dashboard-sized.
func (s *RequestStore) UsageStatistics() (*models.UsageStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	stats := &models.UsageStatistics{
		ModelUsage: make(map[string]int),
	}

	recentCutoff := time.Now().AddDate(0, 0, -7)

	for _, e := range entries {
		stats.TotalRequests++
		stats.ModelUsage[e.Model]++

		if e.Status == models.StatusCompleted {
			stats.CompletedRequests++
		}
		// Token totals count any entry that carries a count, whatever
		// its status.
		if e.TotalTokens != nil {
			stats.TotalTokens += *e.TotalTokens
		}
		if !e.Timestamp.Before(recentCutoff) {
			stats.RecentRequests++
		}
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.CompletedRequests) / float64(stats.TotalRequests) * 100
	}
	if stats.CompletedRequests > 0 {
		stats.AvgTokensPerRequest = float64(stats.TotalTokens) / float64(stats.CompletedRequests)
	}

	return stats, nil
}

func sortByTimestampDesc(entries []models.RequestLogEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}

func intPtr(v int) *int { return &v }
