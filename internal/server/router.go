package server

import (
	"net/http"
	"time"

	"fleet-dashboard/internal/config"
	"fleet-dashboard/internal/handlers"
	applog "fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/middleware"
	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/session"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	serviceName = "fleet-dashboard"
	sessionName = "fd_session"
)

func NewRouter(cfg *config.Config, api *handlers.API, registry *session.Registry, logger *zap.Logger) *gin.Engine {
	logger = applog.OrNop(logger)
	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(logger, &ginzap.Config{
		UTC:        true,
		TimeFormat: time.RFC3339,
		Context:    traceFields,
		SkipPaths:  []string{"/health"},
	}))
	r.Use(ginzap.RecoveryWithZap(logger, true))
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.GeoRestrict(cfg.BlockedCountries, logger))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	// HEALTHCHECK
	r.GET("/health", api.Health)

	// PAGE CHECK для reverse proxy (только cookie, без вкладки)
	r.GET("/auth/check", middleware.CheckPage())

	// SCHEDULER (token comes in the body, no browser session)
	r.POST("/api/scheduler/report/trip-stop", api.TripStopReport)

	tabs := r.Group("/api")
	tabs.Use(middleware.DeviceSession(), middleware.InjectSession(registry, logger))

	// AUTH
	tabs.POST("/auth/login", api.Login)
	tabs.POST("/manager/auth/login", api.ManagerLogin)
	tabs.POST("/auth/logout", api.Logout)

	// ПЕРЕВОДЫ (до входа отдаётся пустое дерево)
	tabs.GET("/translations", api.Languages)
	tabs.GET("/translations/:lang", api.Translations)

	// СЕССИЯ И НАСТРОЙКИ
	authed := tabs.Group("/")
	authed.Use(middleware.RequireSession())
	authed.POST("/auth/refresh", api.Refresh)
	authed.GET("/session", api.Session)
	authed.GET("/settings", api.ListSettings)
	authed.PUT("/settings", api.UpdateSettings)
	authed.POST("/rpc/:namespace", api.Proxy)

	// КЛИЕНТ
	authed.GET("/objects", middleware.RequireAuth(), api.ListObjects)

	// МЕНЕДЖЕР
	manager := tabs.Group("/manager")
	manager.Use(middleware.RequireAuth(), middleware.RequireRole(models.RoleManager))
	manager.GET("/customers", api.ListCustomers)
	manager.POST("/customers/:id/select", api.SelectCustomer)
	manager.POST("/customers/deselect", api.DeselectCustomer)
	manager.GET("/session", api.ManagerSession)
	manager.GET("/users", api.ListUsers)
	manager.GET("/modules", api.ListModules)
	manager.PUT("/translations/:lang", api.UpdateTranslations)

	// АУДИТ: только менеджер
	authed.GET("/audit",
		middleware.RequireRole(models.RoleManager),
		api.ListAuditLogs,
	)

	return r
}

// traceFields adds the otel trace and span ids to the access log.
func traceFields(c *gin.Context) []zapcore.Field {
	var fields []zapcore.Field
	if span := trace.SpanFromContext(c.Request.Context()); span.SpanContext().IsValid() {
		fields = append(fields,
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	if tab := c.GetHeader(middleware.TabHeader); tab != "" {
		fields = append(fields, zap.String("tab", tab))
	}
	return fields
}
