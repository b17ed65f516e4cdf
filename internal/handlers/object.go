package handlers

import (
	"net/http"

	"fleet-dashboard/internal/models"

	"github.com/gin-gonic/gin"
)

// ListObjects returns the vehicles of the signed-in customer.
func (a *API) ListObjects(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	objects, err := a.Backend.ListObjects(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	if objects == nil {
		objects = []models.Object{}
	}
	c.JSON(http.StatusOK, gin.H{"objects": objects})
}
