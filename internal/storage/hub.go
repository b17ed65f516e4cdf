package storage

import (
	"context"
	"sync"
)

const watchBuffer = 64

// hub fans events out to in-process watchers. Watchers more than
// watchBuffer events behind lose the overflow.
type hub struct {
	mu       sync.Mutex
	watchers map[string]map[*Watcher]string // watcher -> origin
	closed   bool
}

func newHub() *hub {
	return &hub{watchers: make(map[string]map[*Watcher]string)}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w, origin := range h.watchers[ev.Namespace] {
		if ev.Origin != "" && origin == ev.Origin {
			continue
		}
		select {
		case w.events <- ev:
		default:
		}
	}
}

func (h *hub) watch(ctx context.Context, ns string) (*Watcher, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	w := newWatcher(watchBuffer)
	w.stop = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.watchers[ns][w]; ok {
			delete(h.watchers[ns], w)
			close(w.events)
		}
	}

	if h.watchers[ns] == nil {
		h.watchers[ns] = make(map[*Watcher]string)
	}
	h.watchers[ns][w] = OriginFrom(ctx)
	w.closeOnDone(ctx)
	return w, nil
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, ws := range h.watchers {
		for w := range ws {
			close(w.events)
		}
	}
	h.watchers = make(map[string]map[*Watcher]string)
}

// localEvents adds an in-process change feed to a Storage without one.
type localEvents struct {
	Storage
	hub *hub
}

// WithLocalEvents wraps s so that tabs served by this process are notified
// of each other's writes. Writes made by other processes are not seen.
func WithLocalEvents(s Storage) Storage {
	return &localEvents{Storage: s, hub: newHub()}
}

func (l *localEvents) Set(ctx context.Context, ns, key string, value []byte) error {
	if err := l.Storage.Set(ctx, ns, key, value); err != nil {
		return err
	}
	l.hub.publish(Event{Namespace: ns, Key: key, NewValue: value, Origin: OriginFrom(ctx)})
	return nil
}

func (l *localEvents) Delete(ctx context.Context, ns, key string) error {
	if err := l.Storage.Delete(ctx, ns, key); err != nil {
		return err
	}
	l.hub.publish(Event{Namespace: ns, Key: key, Origin: OriginFrom(ctx)})
	return nil
}

func (l *localEvents) Watch(ctx context.Context, ns string) (*Watcher, error) {
	return l.hub.watch(ctx, ns)
}

func (l *localEvents) Close() error {
	l.hub.close()
	return l.Storage.Close()
}
