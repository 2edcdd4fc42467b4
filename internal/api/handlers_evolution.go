package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"evo-trading-bot/internal/database"
	"evo-trading-bot/internal/orchestrator"
)

func (s *Server) handleStartEvolution(c *gin.Context) {
	var req orchestrator.EvolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.orchestrator.StartEvolution(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, run)
}

func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.orchestrator.ListRuns()})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.orchestrator.GetRun(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleCancelRun(c *gin.Context) {
	if err := s.orchestrator.CancelRun(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

func (s *Server) handleBestStrategies(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	best, err := s.orchestrator.BestStrategies(c.Param("id"), limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, orchestrator.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	out := make([]map[string]interface{}, 0, len(best))
	for _, chromo := range best {
		out = append(out, chromo.ToMap())
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (s *Server) handleActivateBest(c *gin.Context) {
	id, err := s.orchestrator.ActivateBest(c.Param("id"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, orchestrator.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activated": id})
}

func (s *Server) handleSafetyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.SafetyStatus())
}

// handleGetArchivedRun reads a persisted run back from the database,
// including its fittest stored chromosomes.
func (s *Server) handleGetArchivedRun(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database persistence is disabled"})
		return
	}

	id := c.Param("id")
	run, err := s.repo.GetEvolutionRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evolution run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	top, err := s.repo.TopChromosomes(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run, "top_chromosomes": top})
}
