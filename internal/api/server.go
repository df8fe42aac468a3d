package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/auth"
	"delta-trading-bot/internal/bot"
	"delta-trading-bot/internal/database"
	"delta-trading-bot/internal/events"
	"delta-trading-bot/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	db          *database.DB
	eventBus    *events.EventBus
	bot         *bot.TradingBot
	cfg         config.ServerConfig
	base        config.StrategyConfig
	authService *auth.Service
	authEnabled bool
	wsHub       *WSHub
	log         *logging.Logger
}

// NewServer creates a new API server. authService may be nil when auth
// is disabled; every /api route is then open.
func NewServer(
	cfg config.ServerConfig,
	base config.StrategyConfig,
	db *database.DB,
	eventBus *events.EventBus,
	tradingBot *bot.TradingBot,
	authService *auth.Service,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	origins := strings.Split(cfg.AllowedOrigins, ",")
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		db:          db,
		eventBus:    eventBus,
		bot:         tradingBot,
		cfg:         cfg,
		base:        base,
		authService: authService,
		authEnabled: authService != nil,
		log:         logging.WithComponent("api"),
	}

	server.setupRoutes()
	server.wsHub = InitWebSocket(eventBus)

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.POST("/api/auth/login", s.handleLogin)
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authEnabled})
	})

	api := s.router.Group("/api")
	if s.authEnabled {
		api.Use(auth.Middleware(s.authService.JWTManager()))
	}
	{
		api.POST("/trading/trigger-cycle", s.handleTriggerCycle)
		api.GET("/trading/state", s.handleGetMartingaleState)
		api.GET("/trading/pending", s.handleListPendingStates)
		api.GET("/trades", s.handleGetExecutedTrades)

		api.GET("/strategy-configs", s.handleGetStrategyConfigs)
		api.GET("/strategy-configs/:id", s.handleGetStrategyConfig)
		api.POST("/strategy-configs", s.handleUpsertStrategyConfig)

		api.GET("/ws", s.handleWebSocket)
	}
}

// Start begins listening for HTTP requests. Blocks until the server
// stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Pool.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "healthy",
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// userID resolves the effective user for a request. When auth is
// disabled every request acts as the base strategy's user.
func (s *Server) userID(c *gin.Context) string {
	if !s.authEnabled {
		if q := c.Query("user_id"); q != "" {
			return q
		}
		return s.base.UserID
	}
	return auth.UserIDFromContext(c)
}
