package api

import (
	"errors"
	"net/http"
	"strconv"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/auth"
	"delta-trading-bot/internal/bot"
	"delta-trading-bot/internal/database"
	"delta-trading-bot/internal/martingale"

	"github.com/gin-gonic/gin"
)

// ==================== Auth ====================

func (s *Server) handleLogin(c *gin.Context) {
	if !s.authEnabled {
		errorResponse(c, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	successResponse(c, pair)
}

// ==================== Trading ====================

// handleTriggerCycle runs one decision cycle on demand. The request
// body carries strategy overrides merged onto the base strategy, so a
// caller can trigger an ad-hoc symbol without persisting a config.
func (s *Server) handleTriggerCycle(c *gin.Context) {
	var override config.StrategyConfig
	if err := c.ShouldBindJSON(&override); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := s.base.MergeOverride(override)
	if uid := s.userID(c); uid != "" {
		cfg.UserID = uid
	}
	if err := cfg.Validate(); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	err := s.bot.RunTradingCycle(c.Request.Context(), &cfg)
	switch {
	case err == nil:
		successResponse(c, gin.H{"symbol": cfg.Symbol, "status": "completed"})
	case errors.Is(err, bot.ErrLockBusy):
		errorResponse(c, http.StatusConflict, "a cycle for this symbol is already running")
	case errors.Is(err, bot.ErrValidation):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, bot.ErrDataUnavailable):
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, bot.ErrExternalCall):
		errorResponse(c, http.StatusBadGateway, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGetMartingaleState(c *gin.Context) {
	configID := c.Query("config_id")
	symbol := c.Query("symbol")
	if configID == "" || symbol == "" {
		errorResponse(c, http.StatusBadRequest, "config_id and symbol are required")
		return
	}

	state, err := s.db.GetMartingaleState(c.Request.Context(), configID, s.userID(c), symbol)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load state")
		return
	}
	if state == nil {
		errorResponse(c, http.StatusNotFound, "no state for this symbol")
		return
	}

	successResponse(c, state)
}

// handleListPendingStates reports every chain still awaiting
// reconciliation, across all configs.
func (s *Server) handleListPendingStates(c *gin.Context) {
	states, err := s.db.ListPendingStates(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list pending states")
		return
	}
	if states == nil {
		states = []*martingale.State{}
	}

	successResponse(c, states)
}

func (s *Server) handleGetExecutedTrades(c *gin.Context) {
	symbol := c.Query("symbol")

	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	trades, err := s.db.GetExecutedTrades(c.Request.Context(), s.userID(c), symbol, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load trades")
		return
	}
	if trades == nil {
		trades = []*database.ExecutedTrade{}
	}

	successResponse(c, trades)
}

// ==================== Strategy Configs ====================

func (s *Server) handleGetStrategyConfigs(c *gin.Context) {
	limit := 100
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	configs, err := s.db.GetEnabledStrategyConfigs(c.Request.Context(), limit, offset)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load strategy configs")
		return
	}
	if configs == nil {
		configs = []*config.StrategyConfig{}
	}

	successResponse(c, configs)
}

func (s *Server) handleGetStrategyConfig(c *gin.Context) {
	sc, err := s.db.GetStrategyConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load strategy config")
		return
	}
	if sc == nil {
		errorResponse(c, http.StatusNotFound, "strategy config not found")
		return
	}

	successResponse(c, sc)
}

func (s *Server) handleUpsertStrategyConfig(c *gin.Context) {
	var sc config.StrategyConfig
	if err := c.ShouldBindJSON(&sc); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if sc.UserID == "" {
		sc.UserID = s.userID(c)
	}
	if err := sc.Validate(); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.UpsertStrategyConfig(c.Request.Context(), &sc); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to save strategy config")
		return
	}

	successResponse(c, sc)
}
