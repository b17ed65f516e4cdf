// Package storage is the durable key/value store behind browser sessions.
//
// Entries live in a namespace (one per device) and are keyed by role:
// userData-client, userData-manager and current-role. Watchers of a
// namespace receive the writes of every other writer, never their own,
// the same way a browser delivers storage events only to the other tabs.
package storage

import (
	"context"
	"errors"
	"sync"

	"fleet-dashboard/internal/models"
)

const (
	KeyClient      = "userData-client"
	KeyManager     = "userData-manager"
	KeyCurrentRole = "current-role"
)

var (
	ErrNotFound         = errors.New("storage: key not found")
	ErrWatchUnsupported = errors.New("storage: watch not supported by backend")
	ErrClosed           = errors.New("storage: closed")
)

// SessionKey is the storage key holding the session record of role.
func SessionKey(role models.UserRole) string {
	if role == models.RoleManager {
		return KeyManager
	}
	return KeyClient
}

// RoleForKey reports which role a session key belongs to.
func RoleForKey(key string) (models.UserRole, bool) {
	switch key {
	case KeyClient:
		return models.RoleUser, true
	case KeyManager:
		return models.RoleManager, true
	}
	return "", false
}

// Event is a change made to a namespace by some other writer.
// NewValue is nil when the key was removed.
type Event struct {
	Namespace string
	Key       string
	NewValue  []byte
	Origin    string
}

type Storage interface {
	Get(ctx context.Context, ns, key string) ([]byte, error)
	Set(ctx context.Context, ns, key string, value []byte) error
	Delete(ctx context.Context, ns, key string) error
	// Watch subscribes to changes of ns made under any origin other than
	// the one carried by ctx.
	Watch(ctx context.Context, ns string) (*Watcher, error)
	Close() error
}

type originKey struct{}

// WithOrigin tags writes made with ctx as coming from origin (a tab id).
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin set by WithOrigin, or "".
func OriginFrom(ctx context.Context) string {
	o, _ := ctx.Value(originKey{}).(string)
	return o
}

// Watcher delivers events until Close is called or the watch context ends.
type Watcher struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
	stop   func()
}

func newWatcher(buffer int) *Watcher {
	return &Watcher{events: make(chan Event, buffer), done: make(chan struct{})}
}

// closeOnDone stops w when ctx ends.
func (w *Watcher) closeOnDone(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.done:
		}
	}()
}

// Events is closed once the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.done)
		if w.stop != nil {
			w.stop()
		}
	})
}
