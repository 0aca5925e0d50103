package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gatepass/internal/analytics"
	"gatepass/internal/attendance"
	"gatepass/internal/auth"
	"gatepass/internal/meals"
	"gatepass/internal/media"
	"gatepass/internal/operators"
	"gatepass/internal/visitors"
)

var statusTable = []struct {
	err    error
	status int
}{
	{attendance.ErrNotFound, http.StatusNotFound},
	{attendance.ErrNoActiveEntry, http.StatusNotFound},
	{visitors.ErrNotFound, http.StatusNotFound},
	{visitors.ErrInstitutionNotFound, http.StatusNotFound},
	{meals.ErrNotFound, http.StatusNotFound},
	{operators.ErrNotFound, http.StatusNotFound},
	{media.ErrNotFound, http.StatusNotFound},

	{attendance.ErrAlreadyCheckedIn, http.StatusConflict},
	{attendance.ErrAlreadyDeparted, http.StatusConflict},
	{attendance.ErrConcurrentUpdate, http.StatusConflict},
	{visitors.ErrEmailTaken, http.StatusConflict},
	{visitors.ErrInstitutionExists, http.StatusConflict},
	{meals.ErrAlreadyServed, http.StatusConflict},
	{meals.ErrVersionConflict, http.StatusConflict},
	{operators.ErrUsernameTaken, http.StatusConflict},

	{attendance.ErrInvalidRequest, http.StatusBadRequest},
	{analytics.ErrInvalidRange, http.StatusBadRequest},
	{visitors.ErrInvalidInput, http.StatusBadRequest},
	{visitors.ErrInvalidKey, http.StatusBadRequest},
	{meals.ErrInvalidMeal, http.StatusBadRequest},
	{operators.ErrInvalidInput, http.StatusBadRequest},
	{media.ErrUnsupportedImage, http.StatusBadRequest},

	{visitors.ErrInvalidCredentials, http.StatusUnauthorized},
	{operators.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},

	{attendance.ErrDataIntegrity, http.StatusUnprocessableEntity},
	{analytics.ErrNoDirectory, http.StatusServiceUnavailable},
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as JSON. Internal errors are logged and replaced with a
// generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error(c.Request.Context(), "request failed", "route", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
