package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Storage with a change feed.
type Memory struct {
	mu     sync.Mutex
	data   map[string]map[string][]byte
	hub    *hub
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string][]byte),
		hub:  newHub(),
	}
}

func (m *Memory) Get(_ context.Context, ns, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[ns][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(ctx context.Context, ns, key string, value []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.data[ns] == nil {
		m.data[ns] = make(map[string][]byte)
	}
	v := append([]byte(nil), value...)
	m.data[ns][key] = v
	m.mu.Unlock()

	m.hub.publish(Event{Namespace: ns, Key: key, NewValue: v, Origin: OriginFrom(ctx)})
	return nil
}

func (m *Memory) Delete(ctx context.Context, ns, key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	_, existed := m.data[ns][key]
	delete(m.data[ns], key)
	m.mu.Unlock()

	if existed {
		m.hub.publish(Event{Namespace: ns, Key: key, Origin: OriginFrom(ctx)})
	}
	return nil
}

func (m *Memory) Watch(ctx context.Context, ns string) (*Watcher, error) {
	return m.hub.watch(ctx, ns)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.hub.close()
	return nil
}
