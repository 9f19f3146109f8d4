package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sonarboard/sonarboard/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the Perplexity API endpoint
	DefaultBaseURL = "https://api.perplexity.ai"

	// requestTimeout bounds every API call; there is no retry, a failed
	// call is terminal.
	requestTimeout = 30 * time.Second
)

// Default tuning values applied by SendChat when an option is unset
const (
	DefaultModel       = "sonar-pro"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
)

// supportedModels is the fixed set of model identifiers the dashboard offers
var supportedModels = []string{
	"sonar",
	"sonar-pro",
	"sonar-reasoning",
	"sonar-reasoning-pro",
}

// Client calls the Perplexity chat completions API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an API client. An empty apiKey is accepted; the API
// will reject such calls with 401 and the error surfaces as *HTTPError.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// Send issues a single synchronous chat completion call.
// Failures are classified as ErrTimeout, *NetworkError, *HTTPError or
// *ParseError; no failure is retried.
func (c *Client) Send(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Sending chat completion request",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("body_length", len(payload)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn("Chat completion request timed out",
				zap.String("model", req.Model))
			return nil, ErrTimeout
		}
		c.logger.Warn("Chat completion request failed",
			zap.String("model", req.Model),
			zap.Error(err))
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Chat completion returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	return parseResponse(body)
}

// parseResponse deserializes a 200 body. Absent optional fields
// (search_results, related_questions, citations) stay nil; missing
// required fields are a parse failure.
func parseResponse(body []byte) (*models.ChatResponse, error) {
	var parsed models.ChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ParseError{Reason: "malformed JSON body", Err: err}
	}

	if parsed.ID == "" {
		return nil, &ParseError{Reason: "missing response id"}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ParseError{Reason: "missing choices"}
	}
	if parsed.Usage == nil {
		return nil, &ParseError{Reason: "missing usage"}
	}

	return &parsed, nil
}

// ChatOptions tunes a SendChat call. Nil fields take the package defaults.
type ChatOptions struct {
	Model                  string
	MaxTokens              *int
	Temperature            *float64
	TopP                   *float64
	PresencePenalty        *float64
	FrequencyPenalty       *float64
	ReturnCitations        *bool
	ReturnRelatedQuestions *bool
	ReturnImages           *bool
}

// NewChatRequest builds a single-user-message request with defaulted
// tuning options. Streaming is always disabled; this client does not
// support it.
func NewChatRequest(prompt string, opts ChatOptions) *models.ChatRequest {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	return &models.ChatRequest{
		Model: model,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: prompt},
		},
		MaxTokens:              intOr(opts.MaxTokens, DefaultMaxTokens),
		Temperature:            floatOr(opts.Temperature, DefaultTemperature),
		TopP:                   floatOr(opts.TopP, DefaultTopP),
		PresencePenalty:        floatOr(opts.PresencePenalty, 0.0),
		FrequencyPenalty:       floatOr(opts.FrequencyPenalty, 0.0),
		Stream:                 Bool(false),
		ReturnCitations:        boolOr(opts.ReturnCitations, true),
		ReturnRelatedQuestions: boolOr(opts.ReturnRelatedQuestions, true),
		ReturnImages:           boolOr(opts.ReturnImages, false),
	}
}

// SendChat is the convenience path: builds a defaulted single-message
// request and delegates to Send.
func (c *Client) SendChat(ctx context.Context, prompt string, opts ChatOptions) (*models.ChatResponse, error) {
	return c.Send(ctx, NewChatRequest(prompt, opts))
}

// TestConnection sends a small probe request and reports whether it
// succeeded. The probe consumes API quota like any other call.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.SendChat(ctx,
		"Hello, this is a test message. Please respond with a simple confirmation.",
		ChatOptions{MaxTokens: Int(50)})
	if err != nil {
		c.logger.Warn("Connection test failed", zap.Error(err))
		return false
	}
	return true
}

// Models returns the supported model identifiers
func (c *Client) Models() []string {
	out := make([]string, len(supportedModels))
	copy(out, supportedModels)
	return out
}

// isTimeout distinguishes deadline expiry from other transport failures
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

// Int returns a pointer to v, for optional request fields
func Int(v int) *int { return &v }

// Float returns a pointer to v, for optional request fields
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for optional request fields
func Bool(v bool) *bool { return &v }

func intOr(v *int, def int) *int {
	if v != nil {
		return v
	}
	return Int(def)
}

func floatOr(v *float64, def float64) *float64 {
	if v != nil {
		return v
	}
	return Float(def)
}

func boolOr(v *bool, def bool) *bool {
	if v != nil {
		return v
	}
	return Bool(def)
}
