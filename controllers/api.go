package controllers

import (
	"errors"
	"log"
	"net/http"

	"manuscript-review-api/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// API bundles the services the HTTP handlers call.
type API struct {
	Access      *services.AccessService
	Ownership   *services.OwnershipService
	Submissions *services.SubmissionService
	Jobs        *services.JobQueue

	JWTSecret         string
	AdminPasswordHash string
}

// respondError maps domain errors to HTTP statuses and keeps internal
// failures opaque.
func respondError(c *gin.Context, err error) {
	var illegal *services.IllegalStateError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		out := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": out})
	case errors.As(err, &illegal):
		c.JSON(http.StatusConflict, gin.H{"error": illegal.Error(), "current_status": illegal.Current})
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidDeadline):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
