package handlers

import (
	"net/http"
	"strconv"
	"time"

	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/settings"

	"github.com/gin-gonic/gin"
)

// layouts the backend uses for timestamps
var backendTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseBackendTime(s string) (time.Time, bool) {
	for _, layout := range backendTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatModuleDates rewrites the date columns of rows in the tab's
// date/time format. Values that do not parse are left alone.
func formatModuleDates(rows []models.ModuleOverview, store *settings.Store) {
	layout := store.DateTimeLayout()
	for _, row := range rows {
		for _, col := range models.ModuleDateColumns {
			s, ok := row[col].(string)
			if !ok || s == "" {
				continue
			}
			if t, ok := parseBackendTime(s); ok {
				row[col] = t.Format(layout)
			}
		}
	}
}

func (a *API) ListCustomers(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	customers, err := a.Backend.ListCustomers(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (a *API) ListUsers(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	users, err := a.Backend.ListUsers(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	if users == nil {
		users = []map[string]any{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (a *API) ListModules(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	rows, err := a.Backend.ModuleOverview(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []models.ModuleOverview{}
	}
	formatModuleDates(rows, m.Settings())
	c.JSON(http.StatusOK, gin.H{"modules": rows})
}

// ---------- customer selection ----------

func (a *API) SelectCustomer(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid customer id")
		return
	}

	selected, err := a.Backend.SelectCustomer(c.Request.Context(), m, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": selected, "customer_id": id})
}

func (a *API) DeselectCustomer(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	done, err := a.Backend.DeselectCustomer(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deselected": done})
}

func (a *API) ManagerSession(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	info, err := a.Backend.SessionInfo(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
