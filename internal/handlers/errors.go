package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"coinflip-relay/internal/middleware"
	"coinflip-relay/internal/models"
)

// respondError logs the full error and answers with a message that names the
// failed precondition but never the node's raw output.
func respondError(c *gin.Context, op string, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] %s failed: %v", c.GetString(middleware.RequestIDKey), op, err)
	}
	c.JSON(status, gin.H{"error": message})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "object not found"
	case errors.Is(err, models.ErrObjectStateMismatch):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrSigningFailure):
		return http.StatusInternalServerError, "failed to sign transaction"
	case errors.Is(err, models.ErrSubmissionFailure):
		return http.StatusInternalServerError, "transaction submission failed"
	case errors.Is(err, models.ErrDependencyUnavailable):
		return http.StatusInternalServerError, "ledger unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
