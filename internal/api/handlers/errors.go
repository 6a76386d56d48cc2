package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/230701390/feedr/internal/feederr"
	"github.com/230701390/feedr/internal/services"
)

// IAsynqClient defines the interface for the Asynq client methods used by the handlers.
// Allows mocking in tests.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// respondError maps domain errors to HTTP statuses. Anything unrecognized is
// a 500 with a generic message, the detail stays in the server log.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, feederr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrEmailExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, feederr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, feederr.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "Listing has already been claimed"})
	case errors.Is(err, feederr.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Listing has expired"})
	case errors.Is(err, feederr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, feederr.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
