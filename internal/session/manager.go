package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"fleet-dashboard/internal/backend"
	applog "fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/observability"
	"fleet-dashboard/internal/settings"
	"fleet-dashboard/internal/storage"
)

const (
	DefaultLead    = time.Minute
	refreshTimeout = 30 * time.Second
	cookieMaxAge   = 24 * 60 * 60
)

// Authenticator exchanges credentials and tokens with the backend.
type Authenticator interface {
	Login(ctx context.Context, role models.UserRole, creds backend.Credentials) (string, error)
	Refresh(ctx context.Context, role models.UserRole, token string) (string, error)
}

// AuditFunc records a session event. It runs on the caller's goroutine.
type AuditFunc func(actor string, role models.UserRole, device, action, details string)

type Options struct {
	Device  string // storage namespace shared by the tabs of one browser
	Tab     string // origin of this manager's storage writes
	Storage storage.Storage
	Auth    Authenticator
	// SettingsRemote backs the settings store; nil keeps settings local.
	SettingsRemote settings.Remote
	Sealer         *Sealer
	Lead           time.Duration
	Clock          Clock
	Logger         *zap.Logger
	Audit          AuditFunc
}

// Manager is the session of one tab. All methods are safe for concurrent
// use; state changes are applied under one lock, last write wins.
type Manager struct {
	device   string
	tab      string
	store    storage.Storage
	auth     Authenticator
	sealer   *Sealer
	lead     time.Duration
	clock    Clock
	logger   *zap.Logger
	audit    AuditFunc
	settings *settings.Store

	ctx    context.Context
	cancel context.CancelFunc
	flight singleflight.Group

	restoreMu sync.Mutex
	// writeMu keeps storage writes in the order of the state changes
	// behind them.
	writeMu sync.Mutex

	mu         sync.Mutex
	record     Record
	gen        uint64          // bumped on every session change; late results compare it
	lastRole   models.UserRole // survives ClearSession; Restore reads only this role
	timer      Timer
	redirect   string
	cookieRole models.UserRole
	watcher    *storage.Watcher
	watching   bool
	closed     bool
}

func NewManager(opts Options) *Manager {
	logger := applog.OrNop(opts.Logger)
	if opts.Lead <= 0 {
		opts.Lead = DefaultLead
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Sealer == nil {
		opts.Sealer = NewSealer("")
	}
	logger = logger.With(zap.String("device", opts.Device), zap.String("tab", opts.Tab))

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		device:   opts.Device,
		tab:      opts.Tab,
		store:    opts.Storage,
		auth:     opts.Auth,
		sealer:   opts.Sealer,
		lead:     opts.Lead,
		clock:    opts.Clock,
		logger:   logger,
		audit:    opts.Audit,
		settings: settings.New(opts.SettingsRemote, logger),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ---------- accessors ----------

// Token implements backend.TokenSource.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Token
}

// Role is the tab's active role, "" when it never had a session.
func (m *Manager) Role() models.UserRole {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Role
}

// Session returns the current record without its password.
func (m *Manager) Session() (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record.Token == "" {
		return Record{}, false
	}
	return m.record.Public(), true
}

func (m *Manager) Settings() *settings.Store {
	return m.settings
}

// Redirect returns and clears the pending navigation target set by a
// forced logout.
func (m *Manager) Redirect() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redirect
	m.redirect = ""
	return r
}

func (m *Manager) Device() string { return m.device }

// ---------- mutations ----------

// SetSession merges the non-empty fields of patch into the session. When
// the result carries a token it is persisted under the role's key and the
// refresh timer is re-armed.
func (m *Manager) SetSession(ctx context.Context, patch Record) error {
	return m.apply(ctx, func(prev Record) Record { return prev.merge(patch) })
}

// Login exchanges creds for a token and starts a fresh session for role.
func (m *Manager) Login(ctx context.Context, role models.UserRole, creds backend.Credentials) error {
	token, err := m.auth.Login(ctx, role, creds)
	if err != nil {
		m.note(creds.Username, role, "login_failed", err.Error())
		return err
	}
	fresh := Record{
		Token:    token,
		Username: creds.Username,
		Password: creds.Password,
		Role:     role,
		Customer: creds.Customer,
		Manager:  creds.Manager,
	}
	err = m.apply(ctx, func(prev Record) Record {
		if prev.Role != role {
			prev = Record{}
		}
		return prev.merge(fresh)
	})
	if err != nil {
		return err
	}
	m.note(creds.Username, role, "login", "")
	return nil
}

func (m *Manager) apply(ctx context.Context, next func(Record) Record) error {
	return m.commit(ctx, 0, false, next)
}

// applyIf is apply for an answer computed from the session at generation
// gen. When the session changed in between nothing is written and
// ErrStale is returned.
func (m *Manager) applyIf(ctx context.Context, gen uint64, next func(Record) Record) error {
	return m.commit(ctx, gen, true, next)
}

func (m *Manager) commit(ctx context.Context, gen uint64, check bool, next func(Record) Record) error {
	m.writeMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return ErrClosed
	}
	if check && m.gen != gen {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return ErrStale
	}
	prev := m.record
	rec := next(prev)
	m.record = rec
	m.gen++
	m.redirect = ""
	m.cookieRole = rec.Role
	if rec.Role != "" {
		m.lastRole = rec.Role
	}
	m.scheduleLocked()
	m.mu.Unlock()

	if rec.Token == "" {
		m.writeMu.Unlock()
		return nil
	}
	err := m.persist(ctx, rec)
	m.writeMu.Unlock()
	if err != nil {
		return err
	}
	m.ensureWatch()
	if prev.Token == "" || prev.Role != rec.Role {
		m.settings.Load(m.withOrigin(ctx), rec.Role, m)
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, rec Record) error {
	raw, err := rec.encode(m.sealer)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	ctx = m.withOrigin(ctx)
	if err := m.store.Set(ctx, m.device, storage.SessionKey(rec.Role), raw); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := m.store.Set(ctx, m.device, storage.KeyCurrentRole, []byte(rec.Role)); err != nil {
		return fmt.Errorf("persist current role: %w", err)
	}
	return nil
}

// ClearSession removes the active role's stored record and resets the tab.
// The other role's record is left alone.
func (m *Manager) ClearSession(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	role := m.record.Role
	if role != "" {
		m.lastRole = role
	}
	m.stopTimerLocked()
	m.record = Record{}
	m.gen++
	m.mu.Unlock()

	m.settings.Reset()
	if role == "" {
		return nil
	}

	ctx = m.withOrigin(ctx)
	if err := m.store.Delete(ctx, m.device, storage.SessionKey(role)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	cur, err := m.store.Get(ctx, m.device, storage.KeyCurrentRole)
	if err == nil && models.UserRole(cur) == role {
		if err := m.store.Delete(ctx, m.device, storage.KeyCurrentRole); err != nil {
			return fmt.Errorf("clear current role: %w", err)
		}
	}
	return nil
}

// Logout clears the session on the user's request.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	rec := m.record
	m.mu.Unlock()

	if err := m.ClearSession(ctx); err != nil {
		return err
	}
	m.note(rec.Username, rec.Role, "logout", "")
	return nil
}

// forceLogout clears the session and points the tab at its login page.
func (m *Manager) forceLogout(ctx context.Context, rec Record, target, reason string) {
	if err := m.ClearSession(ctx); err != nil {
		m.logger.Error("clearing session failed", zap.Error(err))
	}
	m.mu.Lock()
	if !m.closed {
		m.redirect = target
	}
	m.mu.Unlock()
	m.logger.Info("session ended", zap.String("reason", reason), zap.String("redirect", target))
	m.note(rec.Username, rec.Role, "forced_logout", reason)
}

// UpdateSettings applies and persists changed settings for the active role.
func (m *Manager) UpdateSettings(ctx context.Context, list []models.Setting) ([]string, error) {
	m.mu.Lock()
	rec := m.record
	m.mu.Unlock()

	changed, err := m.settings.Update(m.withOrigin(ctx), rec.Role, m, list)
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		raw, _ := json.Marshal(changed)
		m.note(rec.Username, rec.Role, "settings_change", string(raw))
	}
	return changed, nil
}

// ---------- refresh ----------

// Refresh trades the current token for a new one. Concurrent calls share
// one backend request. A rejection other than an expired token gets one
// silent re-login; an expired token or a failed re-login ends the session.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.flight.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	rec, gen := m.record, m.gen
	m.mu.Unlock()

	if rec.Token == "" {
		observability.RecordRefresh(ctx, "no_token")
		m.forceLogout(ctx, rec, "/", "no token to refresh")
		return ErrNoSession
	}

	token, err := m.auth.Refresh(ctx, rec.Role, rec.Token)
	if m.stale(gen) {
		return ErrStale
	}
	if err == nil {
		observability.RecordRefresh(ctx, "success")
		if err := m.applyIf(ctx, gen, withToken(token)); err != nil {
			return err
		}
		m.note(rec.Username, rec.Role, "refresh", "")
		return nil
	}

	if ctx.Err() != nil {
		// the caller went away; the session itself is fine
		return err
	}
	if errors.Is(err, backend.ErrTokenExpired) {
		observability.RecordRefresh(ctx, "expired")
		m.forceLogout(ctx, rec, rec.Role.LoginPath(), "token expired")
		return err
	}

	observability.RecordRefresh(ctx, "failure")
	m.logger.Warn("token refresh failed, logging in again", zap.Error(err))
	if _, rerr := m.Relogin(ctx); rerr != nil {
		if errors.Is(rerr, ErrStale) || errors.Is(rerr, ErrClosed) || ctx.Err() != nil {
			return rerr
		}
		m.forceLogout(ctx, rec, rec.Role.LoginPath(), "relogin failed")
		return fmt.Errorf("refresh: %w (relogin: %v)", err, rerr)
	}
	return nil
}

// Relogin logs in again with the cached credentials. It implements
// backend.TokenSource; concurrent calls share one login.
func (m *Manager) Relogin(ctx context.Context) (string, error) {
	v, err, _ := m.flight.Do("relogin", func() (any, error) {
		return m.relogin(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) relogin(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	rec, gen := m.record, m.gen
	m.mu.Unlock()

	if rec.Username == "" || rec.Password == "" {
		observability.RecordRelogin(ctx, "failure")
		return "", ErrNoCredentials
	}

	token, err := m.auth.Login(ctx, rec.Role, rec.Credentials())
	if m.stale(gen) {
		return "", ErrStale
	}
	if err != nil {
		observability.RecordRelogin(ctx, "failure")
		m.note(rec.Username, rec.Role, "relogin_failed", err.Error())
		return "", err
	}
	observability.RecordRelogin(ctx, "success")

	if err := m.applyIf(ctx, gen, withToken(token)); err != nil {
		return "", err
	}
	m.note(rec.Username, rec.Role, "relogin", "")
	return token, nil
}

func withToken(token string) func(Record) Record {
	return func(prev Record) Record { return prev.merge(Record{Token: token}) }
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed || m.gen != gen
}

// scheduleLocked re-arms the refresh timer for the current token.
func (m *Manager) scheduleLocked() {
	m.stopTimerLocked()
	if m.record.Token == "" {
		return
	}
	exp, err := TokenExpiry(m.record.Token)
	if err != nil {
		m.logger.Debug("token without usable expiry, not scheduling refresh", zap.Error(err))
		return
	}
	delay := RefreshDelay(exp.Sub(m.clock.Now()), m.lead)
	if delay < 0 {
		delay = 0
	}
	gen := m.gen
	m.timer = m.clock.AfterFunc(delay, func() { m.fire(gen) })
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) fire(gen uint64) {
	if m.stale(gen) {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, refreshTimeout)
	defer cancel()
	if err := m.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, ErrClosed) {
		m.logger.Warn("scheduled refresh failed", zap.Error(err))
	}
}

// ---------- storage ----------

// Restore loads the session persisted for this device when the tab holds
// no token. A tab that never had a session tries the current-role record
// first, then any role's record; a tab that had one only reads its own
// role's record. Nothing is restored while a redirect is pending. An
// unreadable record is removed.
func (m *Manager) Restore(ctx context.Context) error {
	m.restoreMu.Lock()
	defer m.restoreMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	skip := m.record.Token != "" || m.redirect != ""
	gen, last := m.gen, m.lastRole
	m.mu.Unlock()
	if skip {
		return nil
	}

	ctx = m.withOrigin(ctx)
	m.ensureWatch()

	for _, role := range m.candidateRoles(ctx, last) {
		raw, err := m.store.Get(ctx, m.device, storage.SessionKey(role))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("restore session: %w", err)
		}

		rec, err := decodeRecord(raw, m.sealer)
		if err != nil || rec.Token == "" {
			m.logger.Warn("dropping unreadable session record", zap.String("role", string(role)), zap.Error(err))
			_ = m.store.Delete(ctx, m.device, storage.SessionKey(role))
			_ = m.store.Delete(ctx, m.device, storage.KeyCurrentRole)
			return nil
		}
		rec.Role = role

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		if m.gen != gen {
			// a login or logout landed meanwhile
			m.mu.Unlock()
			return nil
		}
		m.record = rec
		m.gen++
		m.cookieRole = role
		m.lastRole = role
		m.scheduleLocked()
		m.mu.Unlock()

		m.settings.Load(ctx, role, m)
		return nil
	}
	return nil
}

func (m *Manager) candidateRoles(ctx context.Context, last models.UserRole) []models.UserRole {
	if last != "" {
		return []models.UserRole{last}
	}
	var roles []models.UserRole
	if cur, err := m.store.Get(ctx, m.device, storage.KeyCurrentRole); err == nil {
		if role, err := models.ParseRole(string(cur)); err == nil {
			roles = append(roles, role)
		}
	}
	for _, role := range []models.UserRole{models.RoleUser, models.RoleManager} {
		if len(roles) == 0 || roles[0] != role {
			roles = append(roles, role)
		}
	}
	return roles
}

func (m *Manager) ensureWatch() {
	m.mu.Lock()
	if m.closed || m.watching {
		m.mu.Unlock()
		return
	}
	m.watching = true
	m.mu.Unlock()

	w, err := m.store.Watch(m.withOrigin(m.ctx), m.device)
	if err != nil {
		if errors.Is(err, storage.ErrWatchUnsupported) {
			m.logger.Debug("storage has no change feed, other tabs are not mirrored")
		} else {
			m.logger.Warn("watching session storage failed", zap.Error(err))
		}
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		w.Close()
		return
	}
	m.watcher = w
	m.mu.Unlock()

	go func() {
		for ev := range w.Events() {
			m.applyRemote(ev)
		}
	}()
}

// applyRemote mirrors a token change another tab made to this tab's
// active role. Events for any other key or role are ignored.
func (m *Manager) applyRemote(ev storage.Event) {
	role, ok := storage.RoleForKey(ev.Key)
	if !ok {
		return
	}

	m.mu.Lock()
	if m.closed || m.record.Role == "" || m.record.Role != role {
		m.mu.Unlock()
		return
	}

	if ev.NewValue == nil {
		had := m.record.Token != ""
		m.stopTimerLocked()
		m.record.Token = ""
		m.gen++
		if had {
			m.redirect = role.LoginPath()
		}
		m.mu.Unlock()
		m.settings.Reset()
		m.logger.Debug("session removed by another tab", zap.String("role", string(role)))
		return
	}

	rec, err := decodeRecord(ev.NewValue, m.sealer)
	if err != nil || rec.Token == m.record.Token {
		m.mu.Unlock()
		return
	}
	m.record.Token = rec.Token
	m.gen++
	m.scheduleLocked()
	m.mu.Unlock()
	m.logger.Debug("token updated by another tab", zap.String("role", string(role)))
}

// Cookie is the browser-visible mirror of the session, without the
// password. After a logout it expires the previous role's cookie; nil
// means nothing to set.
func (m *Manager) Cookie() *http.Cookie {
	m.mu.Lock()
	rec, role := m.record, m.cookieRole
	m.mu.Unlock()

	if rec.Token != "" {
		raw, err := json.Marshal(rec.Public())
		if err != nil {
			return nil
		}
		return &http.Cookie{
			Name:     storage.SessionKey(rec.Role),
			Value:    url.QueryEscape(string(raw)),
			Path:     "/",
			MaxAge:   cookieMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
	}
	if role == "" {
		return nil
	}
	return &http.Cookie{
		Name:     storage.SessionKey(role),
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ParseCookie decodes a session cookie value written by Cookie.
func ParseCookie(value string) (Record, error) {
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Close tears the manager down: the timer stops, the watcher closes and
// answers still in flight are discarded.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopTimerLocked()
	m.gen++
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	m.cancel()
	if w != nil {
		w.Close()
	}
}

func (m *Manager) withOrigin(ctx context.Context) context.Context {
	return storage.WithOrigin(ctx, m.tab)
}

func (m *Manager) note(actor string, role models.UserRole, action, details string) {
	if m.audit != nil {
		m.audit(actor, role, m.device, action, details)
	}
}
