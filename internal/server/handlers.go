package server

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sonarboard/sonarboard/internal/logger"
	"github.com/sonarboard/sonarboard/internal/models"
	"github.com/sonarboard/sonarboard/internal/perplexity"
	"go.uber.org/zap"
)

// ==================== Auth ====================

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if !s.verifier.Verify(req.Username, req.Password) {
		s.logger.Warn("Failed login attempt",
			zap.String("username", req.Username),
			zap.String("client_ip", c.ClientIP()))
		c.JSON(401, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.sessionToken()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("User logged in", zap.String("username", req.Username))
	c.JSON(200, gin.H{"success": true, "token": token})
}

func (s *Server) verifySession(c *gin.Context) {
	token := c.GetHeader("X-Auth-Token")
	expected, err := s.sessionToken()
	if err != nil || token == "" || token != expected {
		c.JSON(401, gin.H{"valid": false})
		return
	}
	c.JSON(200, gin.H{"valid": true})
}

// ==================== Chat ====================

type chatRequest struct {
	Prompt                 string   `json:"prompt" binding:"required"`
	Model                  string   `json:"model"`
	MaxTokens              *int     `json:"max_tokens"`
	Temperature            *float64 `json:"temperature"`
	TopP                   *float64 `json:"top_p"`
	PresencePenalty        *float64 `json:"presence_penalty"`
	FrequencyPenalty       *float64 `json:"frequency_penalty"`
	ReturnCitations        *bool    `json:"return_citations"`
	ReturnRelatedQuestions *bool    `json:"return_related_questions"`
	ReturnImages           *bool    `json:"return_images"`

	// PromptID marks a saved template as used when the chat came from one
	PromptID string `json:"prompt_id"`
}

// chat runs the full request lifecycle: log as "sent", call the API,
// resolve the log entry to "completed" or "error" with the wall-clock
// duration of the network call.
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	model := req.Model
	if model == "" {
		model = s.cfg.Perplexity.DefaultModel
	}

	opts := perplexity.ChatOptions{
		Model:                  model,
		MaxTokens:              req.MaxTokens,
		Temperature:            req.Temperature,
		TopP:                   req.TopP,
		PresencePenalty:        req.PresencePenalty,
		FrequencyPenalty:       req.FrequencyPenalty,
		ReturnCitations:        req.ReturnCitations,
		ReturnRelatedQuestions: req.ReturnRelatedQuestions,
		ReturnImages:           req.ReturnImages,
	}
	if opts.MaxTokens == nil {
		opts.MaxTokens = perplexity.Int(s.cfg.Perplexity.DefaultMaxTokens)
	}
	if opts.Temperature == nil {
		opts.Temperature = perplexity.Float(s.cfg.Perplexity.DefaultTemperature)
	}

	apiReq := perplexity.NewChatRequest(req.Prompt, opts)

	payload, err := json.Marshal(apiReq)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to serialize request"})
		return
	}

	requestID, err := s.requests.LogRequest(apiReq, string(payload))
	if err != nil {
		s.logger.Error("Failed to log request", zap.Error(err))
		c.JSON(500, gin.H{"error": "failed to log request"})
		return
	}

	start := time.Now()
	resp, err := s.client.Send(c.Request.Context(), apiReq)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		if recErr := s.requests.RecordError(requestID, err.Error(), durationMs); recErr != nil {
			s.logger.Error("Failed to record error outcome", zap.Error(recErr))
		}
		status, kind := classifyClientError(err)
		c.JSON(status, gin.H{
			"error":      err.Error(),
			"error_type": kind,
			"request_id": requestID,
		})
		return
	}

	responseJSON, err := json.Marshal(resp)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to serialize response"})
		return
	}

	if err := s.requests.RecordSuccess(requestID, resp, string(responseJSON), durationMs); err != nil {
		s.logger.Error("Failed to record success outcome", zap.Error(err))
	}

	if req.PromptID != "" {
		if err := s.prompts.MarkUsed(req.PromptID); err != nil {
			s.logger.Error("Failed to mark prompt used",
				zap.String("prompt_id", req.PromptID),
				zap.Error(err))
		}
	}

	c.JSON(200, gin.H{
		"request_id":  requestID,
		"duration_ms": durationMs,
		"response":    resp,
	})
}

// classifyClientError maps the client error taxonomy onto gateway status
// codes; the message is passed through untouched.
func classifyClientError(err error) (int, string) {
	var httpErr *perplexity.HTTPError
	var parseErr *perplexity.ParseError
	var netErr *perplexity.NetworkError

	switch {
	case errors.Is(err, perplexity.ErrTimeout):
		return 504, "timeout"
	case errors.As(err, &httpErr):
		return 502, "http"
	case errors.As(err, &parseErr):
		return 502, "parse"
	case errors.As(err, &netErr):
		return 502, "network"
	default:
		return 500, "internal"
	}
}

func (s *Server) testConnection(c *gin.Context) {
	ok := s.client.TestConnection(c.Request.Context())
	c.JSON(200, gin.H{"ok": ok})
}

func (s *Server) listModels(c *gin.Context) {
	modelIDs := s.client.Models()
	data := make([]gin.H, 0, len(modelIDs))
	for _, id := range modelIDs {
		data = append(data, gin.H{"id": id, "object": "model", "owned_by": "perplexity"})
	}
	c.JSON(200, gin.H{"object": "list", "data": data})
}

// ==================== Request log ====================

func (s *Server) recentRequests(c *gin.Context) {
	entries, err := s.requests.RecentRequests(limitParam(c, 10))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"requests": emptyIfNil(entries)})
}

func (s *Server) requestByID(c *gin.Context) {
	entry, err := s.requests.RequestByID(c.Param("id"))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(404, gin.H{"error": "request not found"})
		return
	}
	c.JSON(200, entry)
}

func (s *Server) requestsByModel(c *gin.Context) {
	entries, err := s.requests.RequestsByModel(c.Param("model"), limitParam(c, 10))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"requests": emptyIfNil(entries)})
}

func (s *Server) clearRequests(c *gin.Context) {
	if err := s.requests.Clear(); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("Request log cleared")
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) usageStatistics(c *gin.Context) {
	stats, err := s.requests.UsageStatistics()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, stats)
}

// ==================== Prompts ====================

type savePromptRequest struct {
	Name        string `json:"name" binding:"required"`
	Content     string `json:"content" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (s *Server) listPrompts(c *gin.Context) {
	prompts, err := s.prompts.List()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"prompts": prompts})
}

func (s *Server) savePrompt(c *gin.Context) {
	var req savePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if req.Category == "" {
		req.Category = "Custom"
	}

	id, err := s.prompts.Save(req.Name, req.Content, req.Description, req.Category)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(201, gin.H{"id": id})
}

func (s *Server) markPromptUsed(c *gin.Context) {
	if err := s.prompts.MarkUsed(c.Param("id")); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) deletePrompt(c *gin.Context) {
	if err := s.prompts.Delete(c.Param("id")); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// ==================== Saved responses ====================

type saveResponseRequest struct {
	RequestID    string          `json:"request_id" binding:"required"`
	PromptName   string          `json:"prompt_name"`
	ResponseData json.RawMessage `json:"response_data" binding:"required"`
}

func (s *Server) listResponses(c *gin.Context) {
	responses, err := s.responses.List()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if responses == nil {
		responses = []models.SavedResponse{}
	}
	c.JSON(200, gin.H{"responses": responses})
}

func (s *Server) saveResponse(c *gin.Context) {
	var req saveResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	id, err := s.responses.Save(req.RequestID, req.ResponseData, req.PromptName)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(201, gin.H{"id": id})
}

func (s *Server) deleteResponse(c *gin.Context) {
	if err := s.responses.Delete(c.Param("id")); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// ==================== Settings ====================

func (s *Server) getSettings(c *gin.Context) {
	cfg, err := s.settings.Load()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, cfg)
}

func (s *Server) saveSettings(c *gin.Context) {
	var cfg models.DashboardConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(400, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := s.settings.Save(&cfg); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	// The client is built once at startup; key/URL changes apply on the
	// next start.
	s.logger.Info("Settings saved, restart to apply API key or base URL changes")
	c.JSON(200, gin.H{"success": true})
}

// ==================== Process logs ====================

func (s *Server) recentLogs(c *gin.Context) {
	c.JSON(200, gin.H{"logs": logger.RecentLogs.Recent(limitParam(c, 100))})
}

// ==================== Helpers ====================

func limitParam(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return def
	}
	return limit
}

func emptyIfNil(entries []models.RequestLogEntry) []models.RequestLogEntry {
	if entries == nil {
		return []models.RequestLogEntry{}
	}
	return entries
}
