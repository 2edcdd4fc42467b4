package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"evo-trading-bot/internal/database"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/strategy"
)

func (s *Server) handleListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"registered": strategy.Registered(),
		"roster":     s.rotator.Roster(),
	})
}

func (s *Server) handleActiveStrategy(c *gin.Context) {
	active, ok := s.rotator.Active()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active strategy"})
		return
	}
	c.JSON(http.StatusOK, active)
}

type setActiveRequest struct {
	StrategyID string `json:"strategy_id" binding:"required"`
}

func (s *Server) handleSetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategy_id is required"})
		return
	}

	if !s.rotator.SetActive(req.StrategyID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown strategy " + req.StrategyID})
		return
	}
	active, _ := s.rotator.Active()
	c.JSON(http.StatusOK, active)
}

type autoRotateRequest struct {
	Symbol       string `json:"symbol" binding:"required"`
	AssetClass   string `json:"asset_class" binding:"required"`
	Interval     string `json:"interval"`
	LookbackDays int    `json:"lookback_days"`
}

func (s *Server) handleAutoRotate(c *gin.Context) {
	var req autoRotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Interval == "" {
		req.Interval = "1d"
	}
	if req.LookbackDays <= 0 {
		req.LookbackDays = 90
	}

	end := time.Now().UTC()
	bars, err := s.fetcher.Fetch(c.Request.Context(), market.FetchRequest{
		Symbol:     req.Symbol,
		AssetClass: market.AssetClass(req.AssetClass),
		StartDate:  end.AddDate(0, 0, -req.LookbackDays),
		EndDate:    end,
		Interval:   req.Interval,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch market data: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.rotator.AutoRotate(bars))
}

func (s *Server) handleRotationHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.rotator.History()})
}

func (s *Server) handleGetBacktest(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database persistence is disabled"})
		return
	}

	res, err := s.repo.GetBacktestResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "backtest not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleListBacktests(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database persistence is disabled"})
		return
	}
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategy_id query parameter is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	results, err := s.repo.ListBacktestResults(c.Request.Context(), strategyID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
