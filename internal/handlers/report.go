package handlers

import (
	"net/http"
	"time"

	"fleet-dashboard/internal/report"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TripStopReport is called by the report scheduler, not by a browser tab.
// The backend token travels in the request body.
func (a *API) TripStopReport(c *gin.Context) {
	var req report.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	out, err := a.Reports.Generate(c.Request.Context(), req)
	if err != nil {
		a.Logger.Error("trip stop report failed",
			zap.String("schedule_date", req.ScheduleDate),
			zap.Error(err))
		status, label := errorStatus(err)
		body := gin.H{"error": label, "message": err.Error()}
		if status == http.StatusInternalServerError {
			body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		}
		c.AbortWithStatusJSON(status, body)
		return
	}

	switch out.Kind {
	case report.KindTest:
		c.JSON(http.StatusOK, gin.H{"message": out.Message, "data": gin.H{"test": true}})
	case report.KindEmailed:
		c.JSON(http.StatusOK, gin.H{"message": out.Message, "emails": out.Emails})
	case report.KindPDF:
		c.Header("Content-Disposition", "attachment; filename="+out.Filename)
		c.Data(http.StatusOK, "application/pdf", out.PDF)
	default:
		c.JSON(http.StatusOK, gin.H{
			"message": out.Message,
			"data":    out.Payload,
			"logs":    gin.H{"dataStructure": out.Payload.Structure()},
		})
	}
}
