// Package settings keeps a session's display preferences and persists the
// ones that change to the backend.
package settings

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"fleet-dashboard/internal/backend"
	applog "fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/observability"
)

// Remote is the backend side of the settings store.
type Remote interface {
	ListSettings(ctx context.Context, ts backend.TokenSource) ([]backend.SettingItem, error)
	SetSetting(ctx context.Context, ts backend.TokenSource, key, value string) error
}

// Defaults returns a fresh copy of the default preferences, in display order.
func Defaults() []models.Setting {
	return []models.Setting{
		{Title: "time_format", Value: "HH:mm:ss"},
		{Title: "language", Value: "en"},
		{Title: "date_format", Value: "dd-MM-yyyy"},
		{Title: "unit_volume", Value: "l"},
		{Title: "unit_distance", Value: "km"},
	}
}

type Store struct {
	remote Remote
	logger *zap.Logger

	mu    sync.RWMutex
	items []models.Setting
}

func New(remote Remote, logger *zap.Logger) *Store {
	logger = applog.OrNop(logger)
	return &Store{remote: remote, logger: logger}
}

// Load replaces the stored list with the defaults overlaid by the remote
// values. Managers never read remote settings; remote errors fall back to
// the defaults.
func (s *Store) Load(ctx context.Context, role models.UserRole, ts backend.TokenSource) []models.Setting {
	list := Defaults()

	if role != models.RoleManager && s.remote != nil {
		items, err := s.remote.ListSettings(ctx, ts)
		if err != nil {
			s.logger.Warn("loading remote settings failed, using defaults", zap.Error(err))
		}
		for _, item := range items {
			for i := range list {
				if list[i].Title == item.Key {
					list[i].Value = item.Vle
				}
			}
		}
	}

	s.mu.Lock()
	s.items = list
	s.mu.Unlock()
	return clone(list)
}

// Update applies incoming entries whose value differs from the stored one
// and persists each of them remotely. Persist failures are logged and the
// local change is kept. Without a token nothing happens. It returns the
// titles that changed.
func (s *Store) Update(ctx context.Context, role models.UserRole, ts backend.TokenSource, incoming []models.Setting) ([]string, error) {
	if ts == nil || ts.Token() == "" {
		return nil, nil
	}
	for _, in := range incoming {
		if err := in.ValidateValue(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	updated := clone(s.items)
	var changed []models.Setting
	for _, in := range incoming {
		idx := indexOf(updated, in.Title)
		if idx >= 0 && updated[idx].Value == in.Value {
			continue
		}
		if idx >= 0 {
			updated[idx] = in
		} else {
			updated = append(updated, in)
		}
		changed = append(changed, in)
	}
	s.items = updated
	s.mu.Unlock()

	titles := make([]string, 0, len(changed))
	for _, setting := range changed {
		titles = append(titles, setting.Title)
		if role == models.RoleManager || s.remote == nil {
			continue
		}
		if err := s.remote.SetSetting(ctx, ts, setting.Title, setting.String()); err != nil {
			observability.RecordSettingsPersist(ctx, "failure")
			s.logger.Warn("persisting setting failed",
				zap.String("setting", setting.Title),
				zap.Error(err))
			continue
		}
		observability.RecordSettingsPersist(ctx, "success")
	}
	return titles, nil
}

// Get returns the stored value of title.
func (s *Store) Get(title string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := indexOf(s.items, title); idx >= 0 {
		return s.items[idx].Value, true
	}
	return nil, false
}

// GetString returns the value of title formatted as a string, or def.
func (s *Store) GetString(title, def string) string {
	v, ok := s.Get(title)
	if !ok {
		return def
	}
	return models.Setting{Title: title, Value: v}.String()
}

func (s *Store) List() []models.Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

// Reset drops all stored settings, as on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

func indexOf(list []models.Setting, title string) int {
	for i := range list {
		if list[i].Title == title {
			return i
		}
	}
	return -1
}

func clone(list []models.Setting) []models.Setting {
	if list == nil {
		return nil
	}
	out := make([]models.Setting, len(list))
	copy(out, list)
	return out
}
