package lifecycle

import (
	"testing"
	"time"

	"github.com/huiputin/routemap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	store := newStore(t, core.RouteData{})
	r := NewRegistry()

	a := NewRoute(store, nil, core.Position{}, nil)
	b, err := OpenRoute(ctx, store, nil, testMarker)
	require.NoError(t, err)
	r.Add(a)
	r.Add(b)
	assert.Equal(t, 2, r.Len())

	got, err := r.Get(b.ID())
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)

	a.Close()
	assert.Equal(t, 1, r.Prune())
	assert.Equal(t, 1, r.Len())

	r.Remove(b.ID())
	assert.True(t, b.Closed())
	assert.Equal(t, 0, r.Len())
	r.Remove(b.ID())
}

func TestRegistry_CloseAll(t *testing.T) {
	store := newStore(t, core.RouteData{})
	r := NewRegistry()
	v, err := OpenRoute(ctx, store, nil, testMarker)
	require.NoError(t, err)
	r.Add(v)

	r.CloseAll()
	assert.True(t, v.Closed())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ExpireIdle(t *testing.T) {
	store := newStore(t, core.RouteData{})
	r := NewRegistry()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	idle, err := OpenRoute(ctx, store, nil, testMarker)
	require.NoError(t, err)
	busy := NewRoute(store, nil, core.Position{}, nil)
	r.Add(idle)
	r.Add(busy)

	now = now.Add(20 * time.Minute)
	_, err = r.Get(busy.ID())
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, r.Expire(30*time.Minute))
	assert.True(t, idle.Closed())
	assert.False(t, busy.Closed())

	_, err = r.Get(idle.ID())
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ExpireDisabled(t *testing.T) {
	store := newStore(t, core.RouteData{})
	r := NewRegistry()
	r.now = func() time.Time { return time.Unix(0, 0) }
	r.Add(NewRoute(store, nil, core.Position{}, nil))

	r.now = func() time.Time { return time.Unix(0, 0).Add(24 * time.Hour) }
	assert.Equal(t, 0, r.Expire(0))
	assert.Equal(t, 1, r.Len())
}
