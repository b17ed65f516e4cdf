package handlers

import (
	"net/http"
	"strings"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/middleware"
	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/session"

	"github.com/gin-gonic/gin"
)

type loginForm struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Customer string `json:"customer"`
	Manager  string `json:"manager"`
}

// Login signs a client in on the requesting tab.
func (a *API) Login(c *gin.Context) {
	a.login(c, models.RoleUser)
}

// ManagerLogin signs a manager in on the requesting tab.
func (a *API) ManagerLogin(c *gin.Context) {
	a.login(c, models.RoleManager)
}

func (a *API) login(c *gin.Context, role models.UserRole) {
	m, ok := tab(c)
	if !ok {
		return
	}

	var form loginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	creds := backend.Credentials{
		Username: strings.TrimSpace(form.Username),
		Password: form.Password,
		Customer: strings.TrimSpace(form.Customer),
		Manager:  strings.TrimSpace(form.Manager),
	}
	if err := m.Login(c.Request.Context(), role, creds); err != nil {
		respondError(c, err)
		return
	}

	middleware.SyncCookie(c, m)
	a.writeSession(c, m)
}

// Logout ends the tab's session. The other role's session survives.
func (a *API) Logout(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}
	role := roleOf(m)

	if err := m.Logout(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	middleware.SyncCookie(c, m)
	c.JSON(http.StatusOK, gin.H{"redirect": role.LoginPath()})
}

// Refresh trades the tab's token for a new one right away.
func (a *API) Refresh(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}

	if err := m.Refresh(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	middleware.SyncCookie(c, m)
	a.writeSession(c, m)
}

// Session returns the tab's session without its password.
func (a *API) Session(c *gin.Context) {
	m, ok := tab(c)
	if !ok {
		return
	}
	a.writeSession(c, m)
}

func (a *API) writeSession(c *gin.Context, m *session.Manager) {
	rec, ok := m.Session()
	if !ok {
		respondError(c, session.ErrNoSession)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":     rec,
		"settings":    m.Settings().List(),
		"maintenance": a.Backend.Maintenance(),
	})
}
