package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"fleet-dashboard/internal/models"

	"github.com/gin-gonic/gin"
)

type rpcForm struct {
	Method string          `json:"method" binding:"required"`
	Params json.RawMessage `json:"params"`
}

// Proxy forwards a JSON-RPC call to the backend namespace with the tab's
// token. A tab may only call the namespace of its own role.
func (a *API) Proxy(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	ns := strings.ToLower(c.Param("namespace"))
	if ns != "client" && ns != "manager" {
		badRequest(c, "unknown namespace "+ns)
		return
	}
	role, _ := models.ParseRole(ns)
	if role != roleOf(m) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "namespace does not match the session role",
		})
		return
	}

	var form rpcForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, "method is required")
		return
	}

	var params any = map[string]any{}
	if len(form.Params) > 0 && string(form.Params) != "null" {
		if err := json.Unmarshal(form.Params, &params); err != nil {
			badRequest(c, "params must be JSON")
			return
		}
	}

	var result json.RawMessage
	if err := a.Backend.Call(c.Request.Context(), role, m, form.Method, params, &result); err != nil {
		respondError(c, err)
		return
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
