package models

import (
	"encoding/json"
	"time"
)

// Request log statuses. A log entry is created as "sent" (the client is
// synchronous, nothing is persisted before the call goes out) and resolved
// exactly once to "completed" or "error". Transitions never regress.
// StatusPending is reserved for pre-send logging if retry/recovery ever
// needs it; no entry is currently persisted with it.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// RequestLogEntry is the durable audit record of one API call attempt
type RequestLogEntry struct {
	ID               string         `json:"id"`
	Timestamp        time.Time      `json:"timestamp"`
	Model            string         `json:"model"`
	Prompt           string         `json:"prompt"`
	RequestJSON      string         `json:"request_json"`
	ResponseJSON     string         `json:"response_json,omitempty"`
	ResponseID       string         `json:"response_id,omitempty"`
	ResponseContent  string         `json:"response_content,omitempty"`
	PromptTokens     *int           `json:"prompt_tokens,omitempty"`
	CompletionTokens *int           `json:"completion_tokens,omitempty"`
	TotalTokens      *int           `json:"total_tokens,omitempty"`
	Status           string         `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	DurationMs       *int64         `json:"duration_ms,omitempty"`
	SearchResults    []SearchResult `json:"search_results,omitempty"`
}

// Resolved reports whether the entry has reached a terminal status
func (e *RequestLogEntry) Resolved() bool {
	return e.Status == StatusCompleted || e.Status == StatusError
}

// SavedPrompt is a reusable prompt template owned by the user
type SavedPrompt struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	Category    string     `json:"category"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	UsageCount  int        `json:"usage_count"`
}

// SavedResponse is a user-captured response snapshot. RequestID is a weak
// reference into the request log: lookup only, no ownership. The referenced
// log entry may be deleted without invalidating this record.
type SavedResponse struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"request_id"`
	PromptName   string          `json:"prompt_name"`
	SavedAt      time.Time       `json:"saved_at"`
	ResponseData json.RawMessage `json:"response_data"`
}

// DashboardConfig is the durable per-installation configuration collection
type DashboardConfig struct {
	APIKey             string  `json:"api_key"`
	BaseURL            string  `json:"base_url"`
	DefaultModel       string  `json:"default_model"`
	DefaultMaxTokens   int     `json:"default_max_tokens"`
	DefaultTemperature float64 `json:"default_temperature"`
}

// UsageStatistics is the aggregate view recomputed over the request log
type UsageStatistics struct {
	TotalRequests       int            `json:"total_requests"`
	CompletedRequests   int            `json:"completed_requests"`
	TotalTokens         int            `json:"total_tokens"`
	SuccessRate         float64        `json:"success_rate"`
	ModelUsage          map[string]int `json:"model_usage"`
	RecentRequests      int            `json:"recent_requests"`
	AvgTokensPerRequest float64        `json:"avg_tokens_per_request"`
}
