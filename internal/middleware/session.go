package middleware

import (
	"net/http"

	applog "fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/session"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TabHeader  = "X-Tab-Id"
	defaultTab = "default"

	deviceKey  = "device"
	managerKey = "SessionManager"
)

// DeviceSession gives every browser a stable device id kept in the cookie
// session. All tabs of the browser share it.
func DeviceSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)

		id, _ := sess.Get(deviceKey).(string)
		if id == "" {
			id = uuid.NewString()
			sess.Set(deviceKey, id)
			_ = sess.Save()
		}
		c.Set(deviceKey, id)

		c.Next()
	}
}

func DeviceID(c *gin.Context) string {
	return c.GetString(deviceKey)
}

// InjectSession resolves the manager of the requesting tab, restores it
// from storage when it holds no token and mirrors its cookie.
func InjectSession(registry *session.Registry, logger *zap.Logger) gin.HandlerFunc {
	logger = applog.OrNop(logger)
	return func(c *gin.Context) {
		device := DeviceID(c)
		if device == "" {
			c.Next()
			return
		}
		tab := c.GetHeader(TabHeader)
		if tab == "" {
			tab = defaultTab
		}

		m := registry.Get(device, tab)
		if err := m.Restore(c.Request.Context()); err != nil {
			logger.Warn("restoring session failed",
				zap.String("device", device),
				zap.String("tab", tab),
				zap.Error(err))
		}
		c.Set(managerKey, m)
		SyncCookie(c, m)

		c.Next()
	}
}

// CurrentManager returns the tab's manager set by InjectSession, or nil.
func CurrentManager(c *gin.Context) *session.Manager {
	if v, ok := c.Get(managerKey); ok {
		if m, ok := v.(*session.Manager); ok {
			return m
		}
	}
	return nil
}

// SyncCookie writes the manager's session cookie when it differs from the
// one the request carried.
func SyncCookie(c *gin.Context, m *session.Manager) {
	ck := m.Cookie()
	if ck == nil {
		return
	}
	current, err := c.Request.Cookie(ck.Name)
	if ck.MaxAge < 0 {
		if err != nil {
			return
		}
	} else if err == nil && current.Value == ck.Value {
		return
	}
	http.SetCookie(c.Writer, ck)
}
