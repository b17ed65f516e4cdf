package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) Health(c *gin.Context) {
	if a.Backend != nil && a.Backend.Maintenance() {
		c.String(http.StatusOK, "ok (backend maintenance)")
		return
	}
	c.String(http.StatusOK, "ok")
}
