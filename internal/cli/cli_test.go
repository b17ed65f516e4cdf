package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendStub struct {
	mu    sync.Mutex
	calls []string
	sets  map[string]string
}

func (b *backendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	switch {
	case strings.HasSuffix(r.URL.Path, "/auth_login"):
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-" + body["username"].(string)})
		return
	case strings.HasSuffix(r.URL.Path, "/auth_refresh"):
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-2"})
		return
	}

	method, _ := body["method"].(string)
	b.mu.Lock()
	b.calls = append(b.calls, method)
	b.mu.Unlock()

	var result any = []any{}
	switch method {
	case "setting.list":
		result = []map[string]string{{"key": "language", "vle": "de"}}
	case "setting.set":
		params := body["params"].(map[string]any)
		b.mu.Lock()
		b.sets[params["key"].(string)] = params["vle"].(string)
		b.mu.Unlock()
		result = true
	case "object.list":
		result = []map[string]any{{"id": 7, "name": "Truck 7"}}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": "1", "result": result})
}

func setupCLI(t *testing.T) (string, *backendStub) {
	t.Helper()
	stub := &backendStub{sets: map[string]string{}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend_url: "+srv.URL+"/\nrole: user\nrefresh_lead: 2m\n"), 0o600))
	return path, stub
}

func run(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadConfigDefaultsAndPersistsIdentity(t *testing.T) {
	path, _ := setupCLI(t)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.RefreshLead)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.False(t, strings.HasSuffix(cfg.BackendURL, "/"))
	require.NotEmpty(t, cfg.Device)
	require.NotEmpty(t, cfg.SealKey)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Device, again.Device)
	assert.Equal(t, cfg.SealKey, again.SealKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nested", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "user", cfg.Role)
	assert.Equal(t, time.Minute, cfg.RefreshLead)
}

func TestSessionLifecycle(t *testing.T) {
	config, stub := setupCLI(t)

	out, err := run(t, config, "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fleetctl login")

	out, err = run(t, config, "login", "--username", "alice", "--password", "secret", "--customer", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as alice")

	out, err = run(t, config, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "username: alice")
	assert.Contains(t, out, "customer: acme")

	out, err = run(t, config, "settings", "get", "language")
	require.NoError(t, err)
	assert.Equal(t, "de\n", out)

	out, err = run(t, config, "settings", "set", "language", "fr")
	require.NoError(t, err)
	assert.Contains(t, out, "language updated")
	assert.Equal(t, "fr", stub.sets["language"])

	out, err = run(t, config, "rpc", "object.list")
	require.NoError(t, err)
	assert.Contains(t, out, "Truck 7")

	_, err = run(t, config, "--role", "manager", "whoami")
	require.Error(t, err)

	out, err = run(t, config, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	out, err = run(t, config, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestStoredPasswordIsSealed(t *testing.T) {
	config, _ := setupCLI(t)
	_, err := run(t, config, "login", "--username", "alice", "--password", "hunter2")
	require.NoError(t, err)

	found := false
	err = filepath.WalkDir(filepath.Join(filepath.Dir(config), "storage"), func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var env struct {
			Value []byte `json:"value"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.NotContains(t, string(env.Value), "hunter2")
		found = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, found)
}

func TestWatchRejectsNonPositiveInterval(t *testing.T) {
	config, _ := setupCLI(t)

	for _, interval := range []string{"0s", "-5s"} {
		_, err := run(t, config, "watch", "--interval="+interval)
		require.Error(t, err, interval)
		assert.Contains(t, err.Error(), "--interval must be positive")
	}
}

func TestScalar(t *testing.T) {
	assert.Equal(t, true, scalar("true"))
	assert.Equal(t, false, scalar("false"))
	assert.Equal(t, "1", scalar("1"))
	assert.Equal(t, "HH:mm", scalar("HH:mm"))
}
