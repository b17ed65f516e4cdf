package session

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Factory builds the manager of a device's tab.
type Factory func(device, tab string) *Manager

// Registry holds one Manager per browser tab. Tabs idle for longer than
// the TTL are evicted and their managers closed.
type Registry struct {
	mu      sync.Mutex
	cache   *cache.Cache
	factory Factory
}

func NewRegistry(idleTTL time.Duration, factory Factory) *Registry {
	cleanup := idleTTL / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	c := cache.New(idleTTL, cleanup)
	c.OnEvicted(func(_ string, v interface{}) {
		if m, ok := v.(*Manager); ok {
			m.Close()
		}
	})
	return &Registry{cache: c, factory: factory}
}

func registryKey(device, tab string) string {
	return device + "/" + tab
}

// Get returns the tab's manager, creating it on first use, and marks the
// tab as active.
func (r *Registry) Get(device, tab string) *Manager {
	key := registryKey(device, tab)

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache.Get(key); ok {
		m := v.(*Manager)
		r.cache.SetDefault(key, m)
		return m
	}
	// an expired entry may still sit in the cache; Delete closes it
	r.cache.Delete(key)

	m := r.factory(device, tab)
	r.cache.SetDefault(key, m)
	return m
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close closes every manager.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.DeleteExpired()
	for key := range r.cache.Items() {
		r.cache.Delete(key)
	}
}
