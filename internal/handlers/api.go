// Package handlers is the JSON API the dashboard front end talks to.
// Every handler works on the session of the requesting tab.
package handlers

import (
	"fleet-dashboard/internal/backend"
	applog "fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/middleware"
	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/report"
	"fleet-dashboard/internal/session"
	"fleet-dashboard/internal/translation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type API struct {
	Backend    *backend.Client
	Translator *translation.Translator
	Reports    *report.Service
	Logger     *zap.Logger
}

func New(b *backend.Client, tr *translation.Translator, reports *report.Service, logger *zap.Logger) *API {
	logger = applog.OrNop(logger)
	return &API{Backend: b, Translator: tr, Reports: reports, Logger: logger}
}

// tab is the session manager of the requesting tab. InjectSession runs on
// every route, so it is only missing when the device cookie is.
func tab(c *gin.Context) (*session.Manager, bool) {
	m := middleware.CurrentManager(c)
	if m == nil {
		respondError(c, session.ErrNoSession)
		return nil, false
	}
	return m, true
}

// roleOf is the tab's role, the client role before any login.
func roleOf(m *session.Manager) models.UserRole {
	if r := m.Role(); r != "" {
		return r
	}
	return models.RoleUser
}
