package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"purify/internal/service"
	"purify/internal/storage"
)

// ── Sources + connections ──────────────────────────────────

func (s *Server) handleSources(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Jobs.ListSources())
}

func (s *Server) handleConnections(c *gin.Context) {
	conns, err := s.deps.Connections.ListConnections()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, conns)
}

func (s *Server) handleConnectionSchema(c *gin.Context) {
	info, err := s.deps.Connections.Introspect(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, info)
}

// ── Jobs ───────────────────────────────────────────────────

func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.deps.Jobs.ListJobs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) handleCreateJob(c *gin.Context) {
	var input service.CreateRelayJobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Errorf("invalid JSON body: %w", err)))
		return
	}
	job, err := s.deps.Jobs.CreateJob(input)
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.deps.Jobs.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleUpdateJob(c *gin.Context) {
	var input service.CreateRelayJobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Errorf("invalid JSON body: %w", err)))
		return
	}
	job, err := s.deps.Jobs.UpdateJob(c.Param("id"), input)
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	if err := s.deps.Jobs.DeleteJob(c.Param("id")); err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRunJob(c *gin.Context) {
	res, err := s.deps.Jobs.RunJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if res == nil {
			c.JSON(statusFor(err), errorBody(err))
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (s *Server) handleListRuns(c *gin.Context) {
	logs, err := s.deps.Jobs.ListRunLogs(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, logs)
}

func statusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrJobRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
