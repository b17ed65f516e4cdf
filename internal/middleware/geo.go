package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	applog "fleet-dashboard/internal/logger"
)

// country headers set by the edge proxy, in order of preference
var countryHeaders = []string{"CF-IPCountry", "X-Country-Code"}

// GeoRestrict turns visitors from blocked countries away from manager
// pages. API routes are never restricted.
func GeoRestrict(blocked []string, logger *zap.Logger) gin.HandlerFunc {
	logger = applog.OrNop(logger)
	set := make(map[string]struct{}, len(blocked))
	for _, code := range blocked {
		set[strings.ToUpper(code)] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if isAPI(path) || !strings.Contains(path, "/manager") {
			c.Next()
			return
		}

		country := ""
		for _, h := range countryHeaders {
			if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
				country = strings.ToUpper(v)
				break
			}
		}
		if _, ok := set[country]; !ok || country == "" {
			c.Next()
			return
		}

		logger.Info("access denied for blocked country", zap.String("country", country), zap.String("path", path))
		c.Redirect(http.StatusFound, "/"+localeOf(path))
		c.Abort()
	}
}

// localeOf is the locale prefix of path, "en" when there is none.
func localeOf(path string) string {
	seg := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	if seg == "" || seg == "manager" {
		return "en"
	}
	return seg
}
