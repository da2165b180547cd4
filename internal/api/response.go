package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// APIError is the wire shape of a failed request
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorEnvelope wraps every error response
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// respondError maps an application error onto its HTTP status. Anything
// that is not an AppError becomes a 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	appErr, ok := errors.GetAppError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorEnvelope{
			Error: APIError{
				Code:    string(errors.ErrCodeInternal),
				Message: "internal server error",
			},
		})
		return
	}

	c.JSON(appErr.StatusCode, ErrorEnvelope{
		Error: APIError{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, errors.BadRequest(message))
}
