package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/domain"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error    string                `json:"error"`
	Details  []string              `json:"details,omitempty"`
	PromptID string                `json:"prompt_id,omitempty"`
	Failures []domain.ModelFailure `json:"failures,omitempty"`
}

// setEnabledRequest is the body of PUT /api/models.
type setEnabledRequest struct {
	ID      string `json:"id" binding:"required"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

type modelsResponse struct {
	Message string         `json:"message,omitempty"`
	Models  []domain.Model `json:"models"`
}

type modelResponse struct {
	Model domain.Model `json:"model"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) submitPrompt(c *gin.Context) {
	var req application.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: []string{err.Error()}})
		return
	}

	submission, err := s.submitter.Submit(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, submission)
}

func (s *Server) listModels(c *gin.Context) {
	models, err := s.catalog.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, modelsResponse{Models: nonNil(models)})
}

func (s *Server) setModelEnabled(c *gin.Context) {
	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: []string{err.Error()}})
		return
	}

	model, err := s.catalog.SetEnabled(c.Request.Context(), req.ID, *req.Enabled)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, modelResponse{Model: model})
}

func (s *Server) syncModels(c *gin.Context) {
	models, err := s.catalog.Sync(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, modelsResponse{
		Message: fmt.Sprintf("Successfully synced %d models.", len(models)),
		Models:  nonNil(models),
	})
}

// writeError maps service errors onto status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		verr      *domain.ValidationError
		allFailed *domain.AllModelsFailedError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error(), Details: verr.Errors})
	case errors.As(err, &allFailed):
		c.JSON(http.StatusBadGateway, errorResponse{
			Error:    allFailed.Error(),
			PromptID: allFailed.PromptID,
			Failures: allFailed.Failures,
		})
	case errors.Is(err, domain.ErrModelNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidConfiguration):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func nonNil(models []domain.Model) []domain.Model {
	if models == nil {
		return []domain.Model{}
	}
	return models
}
