package usecase

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/modules/query"
	resdomain "bizdash/internal/modules/resources/domain"
	"bizdash/internal/platform/gateway"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSessionRegistry_OpenReusesSessionAndRefreshesToken(t *testing.T) {
	f := newFixture(t, defaultBackend())
	registry := NewSessionRegistry(f.deps)
	t.Cleanup(registry.CloseAll)

	first, created, err := registry.Open("sid-1", "user-1", "tok-1")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := registry.Open(" sid-1 ", "user-1", "tok-2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, again)
	assert.Equal(t, "tok-2", again.Token())

	_, _, err = registry.Open("", "user-1", "tok")
	assert.ErrorIs(t, err, ErrMissingSession)
	assert.Equal(t, 1, registry.Len())
}

func TestSessionRegistry_EachAndClose(t *testing.T) {
	f := newFixture(t, defaultBackend())
	registry := NewSessionRegistry(f.deps)

	for _, id := range []string{"b", "a", "c"} {
		_, _, err := registry.Open(id, "user", "tok")
		require.NoError(t, err)
	}

	var seen []string
	registry.Each(func(s *Session) { seen = append(seen, s.ID()) })
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	assert.True(t, registry.Close("b"))
	assert.False(t, registry.Close("b"))
	_, ok := registry.Get("b")
	assert.False(t, ok)

	registry.CloseAll()
	assert.Zero(t, registry.Len())
	assert.Equal(t, 3, f.metrics.closed)
}

func TestSessionRegistry_ReopensClosedSession(t *testing.T) {
	f := newFixture(t, defaultBackend())
	registry := NewSessionRegistry(f.deps)
	t.Cleanup(registry.CloseAll)

	first, _, err := registry.Open("sid", "user", "tok")
	require.NoError(t, err)
	first.Close()

	second, created, err := registry.Open("sid", "user", "tok")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotSame(t, first, second)
}

func TestSessionRegistry_SessionsOfDifferentUsersDoNotShareData(t *testing.T) {
	backend := defaultBackend()
	backend.on(http.MethodGet, "/api/v1/stores", func(req gateway.Request) (any, error) {
		if req.Token == "tok-alice" {
			return page(map[string]any{"id": "1", "name": "AliceStore"}), nil
		}
		return page(map[string]any{"id": "2", "name": "BobStore"}), nil
	})
	f := newFixture(t, backend)
	registry := NewSessionRegistry(f.deps)
	t.Cleanup(registry.CloseAll)

	alice, _, err := registry.Open("sid-alice", "alice", "tok-alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return viewStatus(alice, domain.ViewStores) == query.StatusSuccess }, waitFor, tick)

	bob, _, err := registry.Open("sid-bob", "bob", "tok-bob")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return viewStatus(bob, domain.ViewStores) == query.StatusSuccess }, waitFor, tick)

	storeName := func(s *Session) string {
		st, err := s.ViewState(domain.ViewStores)
		require.NoError(t, err)
		p, ok := st.Data.(*resdomain.Page[resdomain.Store])
		require.True(t, ok)
		require.Len(t, p.Content, 1)
		return p.Content[0].Name
	}
	assert.Equal(t, "AliceStore", storeName(alice))
	assert.Equal(t, "BobStore", storeName(bob))

	requests := backend.requests(http.MethodGet, "/api/v1/stores")
	require.Len(t, requests, 2)
	tokens := []string{requests[0].Token, requests[1].Token}
	assert.ElementsMatch(t, []string{"tok-alice", "tok-bob"}, tokens)
}

func TestSessionRegistry_SweepClosesIdleSessions(t *testing.T) {
	f := newFixture(t, defaultBackend())
	clock := &manualClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	f.deps.Now = clock.Now
	registry := NewSessionRegistry(f.deps, WithIdleTimeout(10*time.Minute))
	t.Cleanup(registry.CloseAll)

	idle, _, err := registry.Open("idle", "user", "tok")
	require.NoError(t, err)
	socket, _, err := registry.Open("socket", "user", "tok")
	require.NoError(t, err)
	socket.Retain()
	active, _, err := registry.Open("active", "user", "tok")
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	_, _, err = registry.Open("active", "user", "tok")
	require.NoError(t, err)
	assert.Zero(t, registry.Sweep())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, registry.Sweep())
	assert.True(t, idle.Closed())
	assert.False(t, socket.Closed())
	assert.False(t, active.Closed())
	_, ok := registry.Get("idle")
	assert.False(t, ok)

	assert.Zero(t, socket.Release())
	clock.Advance(10 * time.Minute)
	assert.Equal(t, 2, registry.Sweep())
	assert.True(t, socket.Closed())
	assert.Zero(t, registry.Len())
}
