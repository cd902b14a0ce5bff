package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/forward"
	"forward_bot/internal/telegram/models"
)

// ForwardService is the slice of the forward controller the API needs.
type ForwardService interface {
	SetConfig(ctx context.Context, source, dest string) error
	Start(ctx context.Context, startID, endID int, notify forward.Notifier) (*models.ForwardProgress, error)
	Resume(ctx context.Context, notify forward.Notifier) (*models.ForwardProgress, error)
	Stop(ctx context.Context) error
	Progress(ctx context.Context) (*models.ForwardProgress, error)
	Status(ctx context.Context) (*models.BotConfig, *models.ForwardProgress, error)
}

type handlers struct {
	service ForwardService
}

// ConfigureRequest mirrors the dashboard's configure action payload.
type ConfigureRequest struct {
	SourceChannel string `json:"sourceChannel" binding:"required"`
	DestChannel   string `json:"destChannel" binding:"required"`
}

// ForwardRequest mirrors the dashboard's bulk-forward action payload.
type ForwardRequest struct {
	StartMessageID int `json:"startMessageId" binding:"required"`
	EndMessageID   int `json:"endMessageId" binding:"required"`
}

// Configure handles POST /api/v1/config
func (h *handlers) Configure(c *gin.Context) {
	var req ConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sourceChannel and destChannel are required"})
		return
	}

	if err := h.service.SetConfig(c.Request.Context(), req.SourceChannel, req.DestChannel); err != nil {
		logger.L().Errorf("Failed to save config via API: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StartForward handles POST /api/v1/forward
// The job runs in the background; poll /api/v1/forward/progress for state.
func (h *handlers) StartForward(c *gin.Context) {
	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startMessageId and endMessageId are required"})
		return
	}
	if req.StartMessageID > req.EndMessageID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID range"})
		return
	}

	progress, err := h.service.Start(c.Request.Context(), req.StartMessageID, req.EndMessageID, nil)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, progress)
}

// Resume handles POST /api/v1/forward/resume
func (h *handlers) Resume(c *gin.Context) {
	progress, err := h.service.Resume(c.Request.Context(), nil)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"resumingFrom": progress.NextResumeID(),
		"progress":     progress,
	})
}

// Stop handles POST /api/v1/forward/stop
func (h *handlers) Stop(c *gin.Context) {
	if err := h.service.Stop(c.Request.Context()); err != nil {
		logger.L().Errorf("Failed to request stop via API: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to request stop"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Progress handles GET /api/v1/forward/progress
func (h *handlers) Progress(c *gin.Context) {
	progress, err := h.service.Progress(c.Request.Context())
	if err != nil {
		logger.L().Errorf("Failed to load progress via API: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}
	if progress == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	c.JSON(http.StatusOK, progress)
}

// Status handles GET /api/v1/status
func (h *handlers) Status(c *gin.Context) {
	cfg, progress, err := h.service.Status(c.Request.Context())
	if err != nil {
		logger.L().Errorf("Failed to load status via API: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"config":   cfg,
		"progress": progress,
	})
}

func (h *handlers) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, forward.ErrNotConfigured):
		c.JSON(http.StatusBadRequest, gin.H{"error": "not configured"})
	case errors.Is(err, forward.ErrJobActive):
		c.JSON(http.StatusConflict, gin.H{"error": "a forwarding job is already active"})
	case errors.Is(err, forward.ErrNoActiveJob):
		c.JSON(http.StatusNotFound, gin.H{"error": "no active forwarding job to resume"})
	case errors.Is(err, forward.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID range"})
	default:
		logger.L().Errorf("Forward API call failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
