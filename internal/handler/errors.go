package handler

import (
	"net/http"

	"gstbooks/internal/apperror"
	"gstbooks/internal/logger"
	"gstbooks/pkg/response"

	"github.com/gin-gonic/gin"
)

var kindStatus = map[apperror.Kind]int{
	apperror.KindValidation:      http.StatusBadRequest,
	apperror.KindPartyMismatch:   http.StatusUnprocessableEntity,
	apperror.KindPosting:         http.StatusConflict,
	apperror.KindAlreadyIncluded: http.StatusConflict,
	apperror.KindImmutableReturn: http.StatusLocked,
	apperror.KindNotFound:        http.StatusNotFound,
	apperror.KindConflict:        http.StatusConflict,
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperror.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes err in the standard envelope. Unclassified errors are logged and hidden.
func respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log := logger.WithComponent("http")
		log.Error().Err(err).
			Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("request failed")
		msg = "internal server error"
	}
	c.JSON(status, response.ErrorWithKind(status, string(kind), msg))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorWithKind(http.StatusBadRequest, string(apperror.KindValidation), "Invalid request payload: "+err.Error()))
}

// currentUser returns the authenticated user id set by the auth middleware.
func currentUser(c *gin.Context) string {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)
	return userIDStr
}
