package handlers

import (
	"net/http"

	"fleet-dashboard/internal/database"
	"fleet-dashboard/internal/models"

	"github.com/gin-gonic/gin"
)

const auditPageSize = 200

// ListAuditLogs returns the latest session events, newest first.
func (a *API) ListAuditLogs(c *gin.Context) {
	logs, err := database.RecentAuditLogs(auditPageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
