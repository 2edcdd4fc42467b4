// Package api exposes the evolution system over HTTP: REST endpoints for
// scheduling and inspecting runs, strategy rotation control, and a
// WebSocket feed of system events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"evo-trading-bot/config"
	"evo-trading-bot/internal/auth"
	"evo-trading-bot/internal/database"
	"evo-trading-bot/internal/events"
	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/orchestrator"
	"evo-trading-bot/internal/resilience"
	"evo-trading-bot/internal/rotation"
)

// Server is the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	orchestrator *orchestrator.Orchestrator
	rotator      *rotation.Rotator
	fetcher      market.Fetcher
	repo         *database.Repository
	hub          *WSHub
	limiter      *resilience.RateLimiter

	jwtManager *auth.JWTManager
	apiKeys    *auth.APIKeyVerifier
	authOn     bool

	config config.ServerConfig
	logger *logging.Logger
}

// Deps bundles the server's collaborators. Repo may be nil when database
// persistence is disabled.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Rotator      *rotation.Rotator
	Fetcher      market.Fetcher
	Repo         *database.Repository
	Bus          *events.Bus
}

// NewServer wires the router
func NewServer(cfg config.ServerConfig, authCfg config.AuthConfig, deps Deps, logger *logging.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		orchestrator: deps.Orchestrator,
		rotator:      deps.Rotator,
		fetcher:      deps.Fetcher,
		repo:         deps.Repo,
		hub:          NewWSHub(deps.Bus, logger),
		limiter:      resilience.NewRateLimiter(120, time.Minute),
		config:       cfg,
		logger:       logger.WithComponent("api"),
		authOn:       authCfg.Enabled,
	}
	if authCfg.Enabled {
		s.jwtManager = auth.NewJWTManager(authCfg.JWTSecret, authCfg.AccessTokenDuration)
		s.apiKeys = auth.NewAPIKeyVerifier(authCfg.APIKeyHash)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(s.rateLimit())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s.router = router
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.hub.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	if s.authOn {
		v1.POST("/auth/token", s.handleIssueToken)
	}

	protected := v1.Group("")
	if s.authOn {
		protected.Use(auth.Middleware(s.jwtManager))
	}

	evolution := protected.Group("/evolution")
	{
		evolution.POST("/runs", s.handleStartEvolution)
		evolution.GET("/runs", s.handleListRuns)
		evolution.GET("/runs/:id", s.handleGetRun)
		evolution.DELETE("/runs/:id", s.handleCancelRun)
		evolution.GET("/runs/:id/best", s.handleBestStrategies)
		evolution.POST("/runs/:id/activate", s.handleActivateBest)
		evolution.GET("/archive/:id", s.handleGetArchivedRun)
	}

	strategies := protected.Group("/strategies")
	{
		strategies.GET("", s.handleListStrategies)
		strategies.GET("/active", s.handleActiveStrategy)
		strategies.POST("/active", s.handleSetActive)
		strategies.POST("/rotate", s.handleAutoRotate)
		strategies.GET("/history", s.handleRotationHistory)
	}

	protected.GET("/backtests/:id", s.handleGetBacktest)
	protected.GET("/backtests", s.handleListBacktests)
	protected.GET("/safety", s.handleSafetyStatus)
}

// Start runs the hub and the HTTP listener; blocks until the listener
// exits.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	s.logger.Info("API server listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := logging.GenerateTraceID()
		c.Header("X-Trace-ID", traceID)
		c.Request = c.Request.WithContext(
			logging.NewContext(c.Request.Context(), s.logger.WithTraceID(traceID)))

		c.Next()

		s.logger.WithTraceID(traceID).Debug("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.limiter.Allow(c.ClientIP()); err != nil {
			var retryAfter time.Duration
			if rlErr, ok := err.(*resilience.RateLimitError); ok {
				retryAfter = rlErr.RetryAfter
			}
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":     "ok",
		"ws_clients": s.hub.ClientCount(),
	}
	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			health["status"] = "degraded"
			health["database"] = err.Error()
		} else {
			health["database"] = "ok"
		}
	}
	c.JSON(http.StatusOK, health)
}

type tokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

func (s *Server) handleIssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}

	if !s.apiKeys.Verify(req.APIKey) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}

	token, err := s.jwtManager.GenerateAccessToken("api-client")
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   s.jwtManager.AccessTokenDuration(),
	})
}
