package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/sonarboard/sonarboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRequestStore(t *testing.T) *RequestStore {
	return NewRequestStore(t.TempDir(), zap.NewNop())
}

func testChatRequest(model, prompt string) *models.ChatRequest {
	return &models.ChatRequest{
		Model:    model,
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
	}
}

func testChatResponse(id string, totalTokens int) *models.ChatResponse {
	return &models.ChatResponse{
		ID:      id,
		Model:   "sonar-pro",
		Created: time.Now().Unix(),
		Choices: []models.Choice{
			{Index: 0, FinishReason: "stop", Message: models.Message{Role: models.RoleAssistant, Content: "answer"}},
		},
		Usage: &models.Usage{PromptTokens: totalTokens / 2, CompletionTokens: totalTokens - totalTokens/2, TotalTokens: totalTokens},
	}
}

func TestLogRequest_ThenResolve(t *testing.T) {
	store := newTestRequestStore(t)

	id, err := store.LogRequest(testChatRequest("sonar-pro", "what is Go?"), `{"model":"sonar-pro"}`)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entry, err := store.RequestByID(id)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, models.StatusSent, entry.Status)
	assert.Equal(t, "sonar-pro", entry.Model)
	assert.Equal(t, "what is Go?", entry.Prompt)
	assert.Nil(t, entry.DurationMs)
	assert.False(t, entry.Resolved())
}

func TestRecordSuccess(t *testing.T) {
	store := newTestRequestStore(t)

	id, err := store.LogRequest(testChatRequest("sonar", "hi"), "{}")
	require.NoError(t, err)

	resp := testChatResponse("resp-1", 30)
	resp.SearchResults = []models.SearchResult{{Title: "T", URL: "https://example.com", Snippet: "S"}}
	require.NoError(t, store.RecordSuccess(id, resp, `{"id":"resp-1"}`, 1234))

	entry, err := store.RequestByID(id)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, models.StatusCompleted, entry.Status)
	assert.Equal(t, "resp-1", entry.ResponseID)
	assert.Equal(t, "answer", entry.ResponseContent)
	require.NotNil(t, entry.TotalTokens)
	assert.Equal(t, 30, *entry.TotalTokens)
	require.NotNil(t, entry.DurationMs)
	assert.Equal(t, int64(1234), *entry.DurationMs)
	require.Len(t, entry.SearchResults, 1)
}

func TestRecordError(t *testing.T) {
	store := newTestRequestStore(t)

	id, err := store.LogRequest(testChatRequest("sonar", "hi"), "{}")
	require.NoError(t, err)

	require.NoError(t, store.RecordError(id, "request timed out", 30000))

	entry, err := store.RequestByID(id)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, models.StatusError, entry.Status)
	assert.Equal(t, "request timed out", entry.ErrorMessage)
	require.NotNil(t, entry.DurationMs)
	assert.Equal(t, int64(30000), *entry.DurationMs)
}

func TestStatusNeverRegresses(t *testing.T) {
	store := newTestRequestStore(t)

	id, err := store.LogRequest(testChatRequest("sonar", "hi"), "{}")
	require.NoError(t, err)

	require.NoError(t, store.RecordSuccess(id, testChatResponse("resp-1", 10), "{}", 100))

	// A late error report must not overwrite the completed outcome.
	require.NoError(t, store.RecordError(id, "late failure", 200))

	entry, err := store.RequestByID(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, entry.Status)
	assert.Empty(t, entry.ErrorMessage)

	// And the reverse: an error entry stays an error.
	id2, err := store.LogRequest(testChatRequest("sonar", "hi"), "{}")
	require.NoError(t, err)
	require.NoError(t, store.RecordError(id2, "boom", 50))
	require.NoError(t, store.RecordSuccess(id2, testChatResponse("resp-2", 10), "{}", 60))

	entry2, err := store.RequestByID(id2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, entry2.Status)
}

func TestResolveUnknownIDIsNoOp(t *testing.T) {
	store := newTestRequestStore(t)

	_, err := store.LogRequest(testChatRequest("sonar", "hi"), "{}")
	require.NoError(t, err)

	require.NoError(t, store.RecordSuccess("no-such-id", testChatResponse("resp-1", 10), "{}", 100))
	require.NoError(t, store.RecordError("no-such-id", "boom", 100))

	entries, err := store.RecentRequests(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusSent, entries[0].Status)
}

func TestRequestByID_NotFound(t *testing.T) {
	store := newTestRequestStore(t)

	entry, err := store.RequestByID("missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRecentRequests_SortedAndLimited(t *testing.T) {
	store := newTestRequestStore(t)

	entries := []models.RequestLogEntry{
		{ID: "a", Timestamp: time.Now().Add(-3 * time.Hour), Model: "sonar", Status: models.StatusSent},
		{ID: "b", Timestamp: time.Now().Add(-1 * time.Hour), Model: "sonar", Status: models.StatusSent},
		{ID: "c", Timestamp: time.Now().Add(-2 * time.Hour), Model: "sonar-pro", Status: models.StatusSent},
	}
	require.NoError(t, store.persist(entries))

	recent, err := store.RecentRequests(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "c", recent[1].ID)
}

func TestRequestsByModel(t *testing.T) {
	store := newTestRequestStore(t)

	entries := []models.RequestLogEntry{
		{ID: "a", Timestamp: time.Now().Add(-3 * time.Hour), Model: "sonar", Status: models.StatusSent},
		{ID: "b", Timestamp: time.Now().Add(-1 * time.Hour), Model: "sonar-pro", Status: models.StatusSent},
		{ID: "c", Timestamp: time.Now().Add(-2 * time.Hour), Model: "sonar", Status: models.StatusSent},
	}
	require.NoError(t, store.persist(entries))

	got, err := store.RequestsByModel("sonar", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestUsageStatistics(t *testing.T) {
	store := newTestRequestStore(t)

	now := time.Now()
	tokens := func(v int) *int { return &v }

	// 3 completed (10/20/30 tokens), 1 error, timestamps spanning 10 days.
	entries := []models.RequestLogEntry{
		{ID: "a", Timestamp: now.AddDate(0, 0, -10), Model: "sonar", Status: models.StatusCompleted, TotalTokens: tokens(10)},
		{ID: "b", Timestamp: now.AddDate(0, 0, -5), Model: "sonar-pro", Status: models.StatusCompleted, TotalTokens: tokens(20)},
		{ID: "c", Timestamp: now.AddDate(0, 0, -1), Model: "sonar-pro", Status: models.StatusCompleted, TotalTokens: tokens(30)},
		{ID: "d", Timestamp: now.AddDate(0, 0, -2), Model: "sonar", Status: models.StatusError},
	}
	require.NoError(t, store.persist(entries))

	stats, err := store.UsageStatistics()
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalRequests)
	assert.Equal(t, 3, stats.CompletedRequests)
	assert.Equal(t, 60, stats.TotalTokens)
	assert.InDelta(t, 75.0, stats.SuccessRate, 0.001)
	assert.InDelta(t, 20.0, stats.AvgTokensPerRequest, 0.001)
	assert.Equal(t, 3, stats.RecentRequests)
	assert.Equal(t, map[string]int{"sonar": 2, "sonar-pro": 2}, stats.ModelUsage)
}

func TestUsageStatistics_Empty(t *testing.T) {
	store := newTestRequestStore(t)

	stats, err := store.UsageStatistics()
	require.NoError(t, err)

	assert.Equal(t, 0, stats.TotalRequests)
	assert.Zero(t, stats.SuccessRate)
	assert.Zero(t, stats.AvgTokensPerRequest)
	assert.Empty(t, stats.ModelUsage)
}

// Two interleaved writers must both land in the collection; the mutex
// serializes the read-modify-write cycle.
func TestConcurrentLogRequests(t *testing.T) {
	store := newTestRequestStore(t)

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)

	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.LogRequest(testChatRequest("sonar", "racing"), "{}")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := store.RecentRequests(0)
	require.NoError(t, err)
	assert.Len(t, entries, writers)
}

func TestClear(t *testing.T) {
	store := newTestRequestStore(t)

	_, err := store.LogRequest(testChatRequest("sonar", "hi"), "{}")
	require.NoError(t, err)

	require.NoError(t, store.Clear())

	entries, err := store.RecentRequests(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
