package server

import (
	"github.com/gin-gonic/gin"
	"github.com/sonarboard/sonarboard/internal/auth"
	"github.com/sonarboard/sonarboard/internal/config"
	"github.com/sonarboard/sonarboard/internal/perplexity"
	"github.com/sonarboard/sonarboard/internal/storage"
	"go.uber.org/zap"
)

// Server is the dashboard API server wiring the Perplexity client and the
// collection stores together. It serves JSON only; rendering is a client
// concern.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	router *gin.Engine

	client    *perplexity.Client
	requests  *storage.RequestStore
	prompts   *storage.PromptStore
	responses *storage.ResponseStore
	settings  *storage.ConfigStore
	verifier  *auth.Verifier
}

// New creates a server instance. The stored config collection backfills
// API key and defaults not supplied by flags, environment or config file.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	gin.SetMode(cfg.Server.Mode)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: gin.New(),
	}

	dataDir := cfg.Storage.DataDir
	s.requests = storage.NewRequestStore(dataDir, logger)
	s.prompts = storage.NewPromptStore(dataDir, logger)
	s.responses = storage.NewResponseStore(dataDir, logger)
	s.settings = storage.NewConfigStore(dataDir)
	s.verifier = auth.NewVerifier(dataDir, logger)

	stored, err := s.settings.Load()
	if err != nil {
		return nil, err
	}
	cfg.Merge(stored)

	if cfg.Perplexity.APIKey == "" {
		logger.Warn("No Perplexity API key configured, upstream calls will be rejected")
	}

	s.client = perplexity.NewClient(cfg.Perplexity.BaseURL, cfg.Perplexity.APIKey, logger)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggerMiddleware())

	if s.cfg.Security.EnableCORS {
		s.router.Use(s.corsMiddleware())
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ping", s.ping)

	api := s.router.Group("/api")
	{
		api.POST("/login", s.login)
		api.GET("/verify", s.verifySession)

		authed := api.Group("/")
		authed.Use(s.authMiddleware())
		{
			authed.POST("/chat", s.chat)
			authed.POST("/test", s.testConnection)
			authed.GET("/models", s.listModels)

			authed.GET("/requests", s.recentRequests)
			authed.GET("/requests/:id", s.requestByID)
			authed.GET("/requests/model/:model", s.requestsByModel)
			authed.DELETE("/requests", s.clearRequests)
			authed.GET("/stats", s.usageStatistics)

			authed.GET("/prompts", s.listPrompts)
			authed.POST("/prompts", s.savePrompt)
			authed.POST("/prompts/:id/used", s.markPromptUsed)
			authed.DELETE("/prompts/:id", s.deletePrompt)

			authed.GET("/responses", s.listResponses)
			authed.POST("/responses", s.saveResponse)
			authed.DELETE("/responses/:id", s.deleteResponse)

			authed.GET("/settings", s.getSettings)
			authed.PUT("/settings", s.saveSettings)

			authed.GET("/logs", s.recentLogs)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}
