package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/planner"
	"github.com/xkilldash9x/goalpilot/internal/service"
	"github.com/xkilldash9x/goalpilot/internal/session"
)

// GoalRequest is the body of POST /goals.
type GoalRequest struct {
	Command   string         `json:"command" binding:"required"`
	SessionID string         `json:"session_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// PlanRequest is the body of POST /plan.
type PlanRequest struct {
	Command string `json:"command" binding:"required"`
}

// PlanResponse is the dry-run result of POST /plan.
type PlanResponse struct {
	Goal  goal.Goal      `json:"goal"`
	Steps []planner.Step `json:"steps"`
}

// SessionRequest is the body of POST /sessions.
type SessionRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"persistence": s.components.Store != nil,
		"time":        time.Now().UTC(),
	})
}

func (s *Server) executeGoal(c *gin.Context) {
	var req GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	out, err := s.components.RunGoal(c.Request.Context(), service.GoalRun{
		Command:   req.Command,
		SessionID: req.SessionID,
		Context:   req.Context,
	}, s.sandboxOpts...)
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrInvalidID):
		s.sessionError(c, err)
		return
	case err != nil:
		s.logger.Error("Failed to start goal execution", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start execution"})
		return
	}
	// The HTTP status is 200 for every FinalOutput; the verdict is in the body.
	c.JSON(http.StatusOK, out)
}

func (s *Server) plan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}
	g, steps, err := s.components.Plan(req.Command)
	if err != nil {
		s.logger.Error("Failed to plan goal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to plan goal"})
		return
	}
	c.JSON(http.StatusOK, PlanResponse{Goal: g, Steps: steps})
}

func (s *Server) statistics(c *gin.Context) {
	coord := s.components.Coordinator
	c.JSON(http.StatusOK, gin.H{
		"executions": s.components.History.Stats(),
		"retries":    coord.History().Stats(),
		"errors":     coord.ErrorHistory().Summary(),
	})
}

func (s *Server) recentRuns(c *gin.Context) {
	if s.components.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run persistence is not configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	runs, err := s.components.Store.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to load recent runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// -- Sessions --

func (s *Server) createSession(c *gin.Context) {
	var req SessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session body"})
			return
		}
	}
	sess, err := s.components.Sessions.Create(req.Variables)
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.components.Sessions.List()
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.components.Sessions.Get(c.Param("id"))
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.components.Sessions.Delete(c.Param("id")); err != nil {
		s.sessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Session operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session storage failure"})
	}
}
