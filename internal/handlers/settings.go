package handlers

import (
	"encoding/json"
	"net/http"

	"fleet-dashboard/internal/models"

	"github.com/gin-gonic/gin"
)

func (a *API) ListSettings(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": m.Settings().List()})
}

// UpdateSettings accepts either a bare list or {"settings": [...]}.
func (a *API) UpdateSettings(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	var list []models.Setting
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Settings []models.Setting `json:"settings"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			badRequest(c, "expected a list of {title, value}")
			return
		}
		list = wrapped.Settings
	}

	changed, err := m.UpdateSettings(c.Request.Context(), list)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if changed == nil {
		changed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"changed":  changed,
		"settings": m.Settings().List(),
	})
}
