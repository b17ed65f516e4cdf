package handlers

import (
	"errors"
	"net/http"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/middleware"
	"fleet-dashboard/internal/report"
	"fleet-dashboard/internal/session"

	"github.com/gin-gonic/gin"
)

// respondError maps an error onto a JSON {error, message} answer. A tab
// whose session was just ended gets 401 with the page to go to.
func respondError(c *gin.Context, err error) {
	if m := middleware.CurrentManager(c); m != nil {
		if target := m.Redirect(); target != "" {
			middleware.SyncCookie(c, m)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "session ended",
				"message":  err.Error(),
				"redirect": target,
			})
			return
		}
	}

	status, label := errorStatus(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   label,
		"message": err.Error(),
	})
}

func errorStatus(err error) (int, string) {
	var rpcErr *backend.RPCError
	switch {
	case errors.Is(err, backend.ErrMaintenance):
		return http.StatusServiceUnavailable, "maintenance"
	case errors.Is(err, backend.ErrNoToken),
		errors.Is(err, backend.ErrTokenExpired),
		errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, report.ErrInvalidType):
		return http.StatusBadRequest, "Invalid report type"
	case errors.Is(err, report.ErrMissingParams):
		return http.StatusBadRequest, "Missing required parameters"
	case errors.Is(err, report.ErrInvalidData), errors.Is(err, report.ErrTestFailure):
		return http.StatusInternalServerError, "Failed to generate report"
	case errors.As(err, &rpcErr):
		if rpcErr.Status >= 400 && rpcErr.Status < 500 {
			return rpcErr.Status, "backend error"
		}
		return http.StatusBadGateway, "backend error"
	}
	return http.StatusInternalServerError, "internal error"
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad request", "message": msg})
}
