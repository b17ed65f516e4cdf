package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReusesManagers(t *testing.T) {
	h := newHarness()
	r := NewRegistry(time.Minute, func(device, tab string) *Manager { return h.manager(tab) })
	defer r.Close()

	a := r.Get("dev-1", "tab-a")
	assert.Same(t, a, r.Get("dev-1", "tab-a"))
	assert.NotSame(t, a, r.Get("dev-1", "tab-b"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistryCloseClosesManagers(t *testing.T) {
	h := newHarness()
	r := NewRegistry(time.Minute, func(device, tab string) *Manager { return h.manager(tab) })

	a := r.Get("dev-1", "tab-a")
	b := r.Get("dev-2", "tab-a")
	r.Close()

	assert.ErrorIs(t, a.SetSession(context.Background(), Record{Token: "x"}), ErrClosed)
	assert.ErrorIs(t, b.SetSession(context.Background(), Record{Token: "x"}), ErrClosed)
	assert.Zero(t, r.Len())
}

func TestRegistryEvictsIdleTabs(t *testing.T) {
	h := newHarness()
	r := NewRegistry(20*time.Millisecond, func(device, tab string) *Manager { return h.manager(tab) })
	defer r.Close()

	m := r.Get("dev-1", "tab-a")
	time.Sleep(40 * time.Millisecond)

	fresh := r.Get("dev-1", "tab-a")
	require.NotSame(t, m, fresh)
	assert.ErrorIs(t, m.Restore(context.Background()), ErrClosed)
}
