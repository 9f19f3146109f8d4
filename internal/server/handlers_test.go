package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sonarboard/sonarboard/internal/config"
	"github.com/sonarboard/sonarboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const upstreamResponseBody = `{
	"id": "resp-123",
	"object": "chat.completion",
	"created": 1724500000,
	"model": "sonar-pro",
	"choices": [
		{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Hello there"}}
	],
	"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
}`

func newTestServer(t *testing.T, upstream http.HandlerFunc) *Server {
	ts := httptest.NewServer(upstream)
	t.Cleanup(ts.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		Storage: config.StorageConfig{
			DataDir: t.TempDir(),
			LogsDir: t.TempDir(),
		},
		Perplexity: config.PerplexityConfig{
			BaseURL: ts.URL,
			APIKey:  "test-key",
		},
	}

	srv, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return srv
}

func loginToken(t *testing.T, srv *Server) string {
	w := doJSON(srv, "POST", "/api/login", map[string]string{
		"username": "admin",
		"password": "admin123",
	}, "")
	require.Equal(t, 200, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func doJSON(srv *Server, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	w := doJSON(srv, "POST", "/api/login", map[string]string{
		"username": "admin",
		"password": "wrong",
	}, "")
	assert.Equal(t, 401, w.Code)

	token := loginToken(t, srv)

	w = doJSON(srv, "GET", "/api/verify", nil, token)
	assert.Equal(t, 200, w.Code)

	w = doJSON(srv, "GET", "/api/verify", nil, "bogus")
	assert.Equal(t, 401, w.Code)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.Equal(t, 401, doJSON(srv, "GET", "/api/stats", nil, "").Code)
	assert.Equal(t, 401, doJSON(srv, "POST", "/api/chat", map[string]string{"prompt": "hi"}, "bogus").Code)
}

func TestChat_Success(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(upstreamResponseBody))
	})
	token := loginToken(t, srv)

	w := doJSON(srv, "POST", "/api/chat", map[string]interface{}{
		"prompt": "what is Go?",
		"model":  "sonar-pro",
	}, token)
	require.Equal(t, 200, w.Code)

	var resp struct {
		RequestID  string               `json:"request_id"`
		DurationMs int64                `json:"duration_ms"`
		Response   *models.ChatResponse `json:"response"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "Hello there", resp.Response.Content())

	// The audit log holds a completed entry for the call.
	entry, err := srv.requests.RequestByID(resp.RequestID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.StatusCompleted, entry.Status)
	assert.Equal(t, "what is Go?", entry.Prompt)
	require.NotNil(t, entry.TotalTokens)
	assert.Equal(t, 30, *entry.TotalTokens)
	require.NotNil(t, entry.DurationMs)
}

func TestChat_UpstreamFailure(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte(`{"error": "upstream broke"}`))
	})
	token := loginToken(t, srv)

	w := doJSON(srv, "POST", "/api/chat", map[string]string{"prompt": "hi"}, token)
	require.Equal(t, 502, w.Code)

	var resp struct {
		ErrorType string `json:"error_type"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "http", resp.ErrorType)
	require.NotEmpty(t, resp.RequestID)

	// The failure is recorded against the same request id.
	entry, err := srv.requests.RequestByID(resp.RequestID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.StatusError, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "500")
}

func TestChat_MarksPromptUsed(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(upstreamResponseBody))
	})
	token := loginToken(t, srv)

	promptID, err := srv.prompts.Save("Reusable", "what is Go?", "", "Custom")
	require.NoError(t, err)

	w := doJSON(srv, "POST", "/api/chat", map[string]string{
		"prompt":    "what is Go?",
		"prompt_id": promptID,
	}, token)
	require.Equal(t, 200, w.Code)

	prompts, err := srv.prompts.List()
	require.NoError(t, err)
	for _, p := range prompts {
		if p.ID == promptID {
			assert.Equal(t, 1, p.UsageCount)
			assert.NotNil(t, p.LastUsed)
		}
	}
}

func TestRequestQueries(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(upstreamResponseBody))
	})
	token := loginToken(t, srv)

	require.Equal(t, 200, doJSON(srv, "POST", "/api/chat", map[string]string{"prompt": "one"}, token).Code)
	require.Equal(t, 200, doJSON(srv, "POST", "/api/chat", map[string]string{"prompt": "two"}, token).Code)

	w := doJSON(srv, "GET", "/api/requests?limit=1", nil, token)
	require.Equal(t, 200, w.Code)
	var list struct {
		Requests []models.RequestLogEntry `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Requests, 1)
	assert.Equal(t, "two", list.Requests[0].Prompt)

	assert.Equal(t, 404, doJSON(srv, "GET", "/api/requests/no-such-id", nil, token).Code)

	w = doJSON(srv, "GET", "/api/stats", nil, token)
	require.Equal(t, 200, w.Code)
	var stats models.UsageStatistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 2, stats.CompletedRequests)
	assert.Equal(t, 60, stats.TotalTokens)

	require.Equal(t, 200, doJSON(srv, "DELETE", "/api/requests", nil, token).Code)
	w = doJSON(srv, "GET", "/api/requests", nil, token)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Requests)
}

func TestPromptEndpoints(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	token := loginToken(t, srv)

	w := doJSON(srv, "POST", "/api/prompts", map[string]string{
		"name":    "My Prompt",
		"content": "Explain quicksort",
	}, token)
	require.Equal(t, 201, w.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	require.Equal(t, 200, doJSON(srv, "POST", "/api/prompts/"+created.ID+"/used", nil, token).Code)

	w = doJSON(srv, "GET", "/api/prompts", nil, token)
	require.Equal(t, 200, w.Code)
	var list struct {
		Prompts []models.SavedPrompt `json:"prompts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))

	var found *models.SavedPrompt
	for i := range list.Prompts {
		if list.Prompts[i].ID == created.ID {
			found = &list.Prompts[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 1, found.UsageCount)
	assert.Equal(t, "Custom", found.Category)

	require.Equal(t, 200, doJSON(srv, "DELETE", "/api/prompts/"+created.ID, nil, token).Code)
}

func TestResponseEndpoints(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	token := loginToken(t, srv)

	w := doJSON(srv, "POST", "/api/responses", map[string]interface{}{
		"request_id":    "req-1",
		"prompt_name":   "Research Analysis",
		"response_data": map[string]string{"content": "snapshot"},
	}, token)
	require.Equal(t, 201, w.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(srv, "GET", "/api/responses", nil, token)
	require.Equal(t, 200, w.Code)
	var list struct {
		Responses []models.SavedResponse `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Responses, 1)
	assert.Equal(t, "req-1", list.Responses[0].RequestID)

	require.Equal(t, 200, doJSON(srv, "DELETE", "/api/responses/"+created.ID, nil, token).Code)
}

func TestSettingsEndpoints(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	token := loginToken(t, srv)

	w := doJSON(srv, "PUT", "/api/settings", models.DashboardConfig{
		APIKey:             "pplx-new",
		BaseURL:            "https://api.perplexity.ai",
		DefaultModel:       "sonar",
		DefaultMaxTokens:   500,
		DefaultTemperature: 0.3,
	}, token)
	require.Equal(t, 200, w.Code)

	w = doJSON(srv, "GET", "/api/settings", nil, token)
	require.Equal(t, 200, w.Code)
	var got models.DashboardConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "pplx-new", got.APIKey)
	assert.Equal(t, "sonar", got.DefaultModel)
}

func TestModelsEndpoint(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	token := loginToken(t, srv)

	w := doJSON(srv, "GET", "/api/models", nil, token)
	require.Equal(t, 200, w.Code)

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 4)
	assert.Equal(t, "sonar", resp.Data[0].ID)
}
