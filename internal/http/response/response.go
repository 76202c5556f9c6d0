package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/lumenlms/tutor-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondFromError maps domain error kinds onto HTTP statuses. Unknown
// errors read as 500.
func RespondFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, errs.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errs.ErrPermissionDenied):
		RespondError(c, http.StatusForbidden, "permission_denied", err)
	case errors.Is(err, errs.ErrSessionBusy):
		RespondError(c, http.StatusConflict, "session_busy", err)
	case errors.Is(err, errs.ErrRateLimited):
		RespondError(c, http.StatusTooManyRequests, "rate_limited", err)
	case errors.Is(err, errs.ErrSecurityRejected):
		RespondError(c, http.StatusBadRequest, "message_rejected", errors.New("message rejected"))
	case errors.Is(err, errs.ErrPlaybackBlocked):
		RespondError(c, http.StatusConflict, "playback_blocked", err)
	case errors.Is(err, errs.ErrRemoteCallFailed), errors.Is(err, errs.ErrStorageUnavailable):
		RespondError(c, http.StatusBadGateway, "upstream_failed", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
