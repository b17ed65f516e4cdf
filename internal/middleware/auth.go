package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/session"
	"fleet-dashboard/internal/storage"

	"github.com/gin-gonic/gin"
)

const (
	managerLoginPath = "/manager/login"
	// OriginalURIHeader names the page a reverse proxy asks CheckPage about.
	OriginalURIHeader = "X-Original-URI"
)

var localeSegment = regexp.MustCompile(`^[a-z]{2}(-[A-Za-z]{2})?$`)

// guardedRole is the role a path requires: manager pages and manager API
// need a manager session, everything else a client one.
func guardedRole(path string) models.UserRole {
	if strings.Contains(path, "/manager") {
		return models.RoleManager
	}
	return models.RoleUser
}

func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// hasToken reports whether the request carries a session for role. The
// tab's manager wins when InjectSession ran; otherwise the cookie mirror
// is consulted, which is all CheckPage ever sees.
func hasToken(c *gin.Context, role models.UserRole) bool {
	if m := CurrentManager(c); m != nil {
		return m.Token() != "" && m.Role() == role
	}
	ck, err := c.Request.Cookie(storage.SessionKey(role))
	if err != nil || ck.Value == "" {
		return false
	}
	rec, err := session.ParseCookie(ck.Value)
	if err != nil {
		return false
	}
	return rec.Token != "" && (rec.Role == role || (rec.Role == "" && role == models.RoleUser))
}

// deny sends the request to its login page. A redirect left by a forced
// logout takes precedence.
func deny(c *gin.Context, target string) {
	if m := CurrentManager(c); m != nil {
		if r := m.Redirect(); r != "" {
			target = r
		}
	}
	if isAPI(c.Request.URL.Path) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":    "unauthorized",
			"message":  "session required",
			"redirect": target,
		})
		return
	}
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.Contains(path, managerLoginPath) {
			c.Next()
			return
		}

		role := guardedRole(path)
		if !hasToken(c, role) {
			deny(c, role.LoginPath())
			return
		}
		c.Next()
	}
}

// RequireSession admits a tab signed in under any role.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := CurrentManager(c)
		if m == nil || m.Token() == "" {
			deny(c, guardedRole(c.Request.URL.Path).LoginPath())
			return
		}
		c.Next()
	}
}

func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := map[models.UserRole]struct{}{}
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		m := CurrentManager(c)
		if m == nil || m.Token() == "" {
			deny(c, guardedRole(c.Request.URL.Path).LoginPath())
			return
		}

		if _, ok := roleSet[m.Role()]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "access denied",
			})
			return
		}
		c.Next()
	}
}

// isLoginPage reports whether path is one of the login pages: "/", a bare
// locale such as "/de", or the manager login.
func isLoginPage(path string) bool {
	if strings.Contains(path, managerLoginPath) {
		return true
	}
	trimmed := strings.Trim(path, "/")
	return trimmed == "" || localeSegment.MatchString(trimmed)
}

// CheckPage answers a reverse proxy's auth sub-request for the page in
// X-Original-URI. The proxy sends no tab id, so only the cookie mirror is
// read. 204 admits the page; 401 carries the login page in Location.
func CheckPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := url.Parse(c.GetHeader(OriginalURIHeader))
		if err != nil || target.Path == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "bad_request",
				"message": OriginalURIHeader + " header required",
			})
			return
		}

		path := target.Path
		if isLoginPage(path) {
			c.Status(http.StatusNoContent)
			return
		}
		role := guardedRole(path)
		if !hasToken(c, role) {
			c.Header("Location", role.LoginPath())
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
