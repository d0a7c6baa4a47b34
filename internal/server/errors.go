package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingperioddomain "github.com/shipyardhq/shipyard/internal/billingperiod/domain"
	ownerdomain "github.com/shipyardhq/shipyard/internal/owner/domain"
	usagedomain "github.com/shipyardhq/shipyard/internal/usage/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

// ErrorHandlingMiddleware renders the last handler error as a JSON body.
// Handlers report errors through AbortWithError and never write twice.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: validationErrorMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, usagedomain.ErrInvalidUsageType),
		errors.Is(err, usagedomain.ErrInvalidQuantity),
		errors.Is(err, usagedomain.ErrInvalidAction),
		errors.Is(err, ownerdomain.ErrInvalidOwner),
		errors.Is(err, billingperioddomain.ErrInvalidPeriod):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, usagedomain.ErrRunNotFound),
		errors.Is(err, usagedomain.ErrArtifactNotFound),
		errors.Is(err, ownerdomain.ErrOwnerNotFound),
		errors.Is(err, billingperioddomain.ErrPeriodNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorMessage(err error) string {
	var sentinels = []error{
		usagedomain.ErrInvalidUsageType,
		usagedomain.ErrInvalidQuantity,
		usagedomain.ErrInvalidAction,
		ownerdomain.ErrInvalidOwner,
		billingperioddomain.ErrInvalidPeriod,
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return strings.ReplaceAll(sentinel.Error(), "_", " ")
		}
	}
	return "invalid request"
}
