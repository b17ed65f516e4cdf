package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/config"
	"fleet-dashboard/internal/handlers"
	"fleet-dashboard/internal/middleware"
	"fleet-dashboard/internal/report"
	"fleet-dashboard/internal/session"
	"fleet-dashboard/internal/storage"
	"fleet-dashboard/internal/translation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeBackend answers the JSON-RPC methods the dashboard uses.
type fakeBackend struct {
	mu      sync.Mutex
	methods []string
	results map[string]any
}

func (f *fakeBackend) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if strings.HasSuffix(r.URL.Path, "/auth_login") {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-" + body["username"].(string)})
		return
	}
	if strings.HasSuffix(r.URL.Path, "/auth_refresh") {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-refreshed"})
		return
	}

	var req struct {
		Method string `json:"method"`
	}
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &req)
	ns := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.methods = append(f.methods, ns+":"+req.Method)
	result, ok := f.results[req.Method]
	f.mu.Unlock()
	if !ok {
		result = []any{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": "1", "result": result})
}

type client struct {
	t       *testing.T
	handler http.Handler
	tab     string
	cookies map[string]*http.Cookie
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.tab != "" {
		req.Header.Set(middleware.TabHeader, c.tab)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return w
}

// otherTab shares the browser's cookies but is a different tab.
func (c *client) otherTab(tab string) *client {
	cookies := make(map[string]*http.Cookie, len(c.cookies))
	for k, v := range c.cookies {
		cookies[k] = v
	}
	return &client{t: c.t, handler: c.handler, tab: tab, cookies: cookies}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func setup(t *testing.T, results map[string]any) (*client, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{results: results}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	bc := backend.New(srv.URL)
	store := storage.NewMemory()
	registry := session.NewRegistry(time.Minute, func(device, tab string) *session.Manager {
		return session.NewManager(session.Options{
			Device:         device,
			Tab:            tab,
			Storage:        store,
			Auth:           bc,
			SettingsRemote: bc,
			Sealer:         session.NewSealer("secret"),
		})
	})
	t.Cleanup(registry.Close)

	tr := translation.New(bc, time.Minute, nil)
	api := handlers.New(bc, tr, report.NewService(bc, nil, nil, nil), nil)
	cfg := &config.Config{SessionSecret: "cookie-secret", BlockedCountries: []string{"SG", "CN"}}
	r := NewRouter(cfg, api, registry, nil)

	return &client{t: t, handler: r, tab: "tab-1", cookies: map[string]*http.Cookie{}}, fb
}

func TestHealth(t *testing.T) {
	c, _ := setup(t, nil)
	w := c.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestGuardedRoutesNeedSession(t *testing.T) {
	c, _ := setup(t, nil)

	for _, path := range []string{"/api/session", "/api/objects", "/api/manager/customers"} {
		w := c.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestClientLoginFlow(t *testing.T) {
	c, fb := setup(t, map[string]any{
		"setting.list": []map[string]string{{"key": "language", "vle": "de"}},
		"object.list":  []map[string]any{{"id": 7, "name": "Truck 7"}},
	})

	w := c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice", "password": "secret", "customer": "acme",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	sess := body["session"].(map[string]any)
	assert.Equal(t, "tok-alice", sess["token"])
	assert.Equal(t, "user", sess["role"])
	assert.NotContains(t, sess, "password")
	require.Contains(t, c.cookies, storage.KeyClient)
	require.Contains(t, c.cookies, "fd_session")

	w = c.do(http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"de"`)

	w = c.do(http.MethodGet, "/api/objects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Truck 7")

	// client sessions stay out of manager routes
	w = c.do(http.MethodGet, "/api/manager/customers", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Contains(t, fb.seen(), "client:setting.list")
	assert.Contains(t, fb.seen(), "client:object.list")

	w = c.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/", decode(t, w)["redirect"])
	assert.NotContains(t, c.cookies, storage.KeyClient)

	w = c.do(http.MethodGet, "/api/objects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejected(t *testing.T) {
	c, _ := setup(t, nil)
	w := c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "backend error", decode(t, w)["error"])

	w = c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecondTabSharesSession(t *testing.T) {
	c, _ := setup(t, nil)
	w := c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	other := c.otherTab("tab-2")
	w = other.do(http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-alice", decode(t, w)["session"].(map[string]any)["token"])
}

func TestLogoutKeepsTabOutOfOtherRoleSession(t *testing.T) {
	c, _ := setup(t, nil)
	w := c.do(http.MethodPost, "/api/manager/auth/login", map[string]string{
		"username": "ops", "password": "secret", "manager": "fleetco",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tab := c.otherTab("tab-client")
	w = tab.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = tab.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = tab.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
	assert.Equal(t, "/", decode(t, w)["redirect"])

	w = c.do(http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "manager", decode(t, w)["session"].(map[string]any)["role"])
}

func TestPageCheckReadsCookieMirror(t *testing.T) {
	c, _ := setup(t, nil)
	check := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/check", nil)
		req.Header.Set(middleware.OriginalURIHeader, "/en/dashboard")
		for _, ck := range c.cookies {
			req.AddCookie(ck)
		}
		w := httptest.NewRecorder()
		c.handler.ServeHTTP(w, req)
		return w
	}

	w := check()
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNoContent, check().Code)

	w = c.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusUnauthorized, check().Code)
}

func TestManagerRoutes(t *testing.T) {
	c, fb := setup(t, map[string]any{
		"customer.list":           []map[string]any{{"id": 1, "name": "Acme"}},
		"module.overview":         []map[string]any{{"imei": "123", "last_data_received": "2024-05-01T13:45:00Z"}},
		"session.select_customer": true,
		"translation.set_bulk":    map[string]bool{"result": true},
	})

	w := c.do(http.MethodPost, "/api/manager/auth/login", map[string]string{
		"username": "ops", "password": "secret", "manager": "fleetco",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, c.cookies, storage.KeyManager)

	w = c.do(http.MethodGet, "/api/manager/customers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Acme")

	w = c.do(http.MethodGet, "/api/manager/modules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "01-05-2024 13:45:00")

	w = c.do(http.MethodPost, "/api/manager/customers/1/select", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["selected"])

	w = c.do(http.MethodPut, "/api/manager/translations/de", map[string]any{
		"items": []map[string]string{{"key": "menu.home", "value": "Start"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["saved"])

	// managers never read remote settings
	assert.NotContains(t, fb.seen(), "manager:setting.list")
	assert.Contains(t, fb.seen(), "manager:session.select_customer")

	// a manager tab cannot use the client namespace
	w = c.do(http.MethodPost, "/api/rpc/client", map[string]any{"method": "object.list"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodPost, "/api/rpc/manager", map[string]any{"method": "customer.list"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Acme")
}

func TestTranslationsBeforeLogin(t *testing.T) {
	c, fb := setup(t, nil)
	w := c.do(http.MethodGet, "/api/translations/en", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = c.do(http.MethodGet, "/api/translations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fb.seen())
}

func TestTranslationsAfterLogin(t *testing.T) {
	c, _ := setup(t, map[string]any{
		"translation.list": []map[string]string{
			{"key": "menu.home", "val": "Home"},
			{"key": "errors.login.failed", "val": "Login failed"},
		},
		"translation.languages_list": []string{"en", "de"},
	})
	w := c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodGet, "/api/translations/en", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode(t, w)
	assert.Equal(t, "Home", tree["menu"].(map[string]any)["home"])

	w = c.do(http.MethodGet, "/api/translations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"en", "de"}, decode(t, w)["languages"])
}

func TestSchedulerReportWithoutSession(t *testing.T) {
	c, _ := setup(t, nil)

	w := c.do(http.MethodPost, "/api/scheduler/report/trip-stop", map[string]any{
		"data": map[string]any{"params": map[string]string{"report_type": "report_ok"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Test success - report_ok type requested", decode(t, w)["message"])

	w = c.do(http.MethodPost, "/api/scheduler/report/trip-stop", map[string]any{
		"data": map[string]any{"params": map[string]string{"report_type": "bogus"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid report type", decode(t, w)["error"])

	w = c.do(http.MethodPost, "/api/scheduler/report/trip-stop", map[string]any{
		"data": map[string]any{"params": map[string]string{"report_type": "report_fail"}},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGeoRestrictedManagerPage(t *testing.T) {
	c, _ := setup(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/de/manager/fleet", nil)
	req.Header.Set("CF-IPCountry", "CN")
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/de", w.Header().Get("Location"))
}
