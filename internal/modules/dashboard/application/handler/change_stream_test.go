package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/modules/dashboard/application/usecase"
	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/modules/query"
	"bizdash/internal/modules/selection"
	resinfra "bizdash/internal/modules/resources/infrastructure"
	"bizdash/internal/platform/gateway"
	"bizdash/internal/shared/logging"
)

// storesOnly serves the stores collection and counts the calls.
type storesOnly struct {
	calls atomic.Int32
}

func (s *storesOnly) Do(_ context.Context, req gateway.Request, out any) error {
	if req.Method != http.MethodGet || req.Path != "/api/v1/stores" {
		return &gateway.HTTPError{Status: http.StatusNotFound}
	}
	s.calls.Add(1)
	raw, _ := json.Marshal(map[string]any{
		"content":       []any{map[string]any{"id": "1"}},
		"totalElements": 1,
		"totalPages":    1,
	})
	return json.Unmarshal(raw, out)
}

type recorder struct {
	mu      sync.Mutex
	msgs    []*domain.Message
	changes []string
}

func (r *recorder) Broadcast(_ context.Context, msg *domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// forwarded returns the change notices, skipping view and selection pushes.
func (r *recorder) forwarded() []*domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, msg := range r.msgs {
		if msg.Entity != domain.ViewEntity && msg.Entity != domain.SelectionEntity {
			out = append(out, msg)
		}
	}
	return out
}

func (r *recorder) topics() []string {
	var out []string
	for _, msg := range r.forwarded() {
		out = append(out, msg.Topic)
	}
	return out
}

func (r *recorder) SessionOpened() {}
func (r *recorder) SessionClosed() {}
func (r *recorder) ChangeApplied(entity, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, entity+"."+action)
}

func setup(t *testing.T) (*usecase.SessionRegistry, *storesOnly, *recorder) {
	t.Helper()
	logger := logging.Discard()
	backend := &storesOnly{}
	rec := &recorder{}
	client := query.NewClient(query.Config{}, query.WithLogger(logger))
	t.Cleanup(client.Shutdown)
	registry := usecase.NewSessionRegistry(usecase.SessionDeps{
		Client:      client,
		Services:    resinfra.NewServices(backend, logger),
		Broadcaster: rec,
		Metrics:     rec,
		Logger:      logger,
	})
	t.Cleanup(registry.CloseAll)
	return registry, backend, rec
}

func TestChangeStreamHandler_InvalidatesAndRefreshesSessions(t *testing.T) {
	registry, backend, rec := setup(t)
	session, _, err := registry.Open("sid", "user", "tok")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, _ := session.ViewState(domain.ViewStores)
		return st.Status == query.StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, backend.calls.Load())

	h := NewChangeStreamHandler("dashboard.stores", nil, registry)
	assert.Equal(t, "dashboard.stores", h.Topic())

	err = h.Handle(context.Background(), &domain.Message{
		Entity:     "Store",
		Action:     "Updated",
		ResourceID: "1",
		Metadata:   map[string]string{"tenantId": "t-9"},
		Data:       map[string]any{"name": "Centro", "owner": "someone else"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return backend.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"stores.updated"}, rec.changes)

	forwarded := rec.forwarded()
	require.Len(t, forwarded, 1)
	assert.Equal(t, "stores.updated", forwarded[0].Topic)
	assert.Equal(t, "1", forwarded[0].ResourceID)
	assert.Equal(t, map[string]string{"sessionId": "sid"}, forwarded[0].Metadata)
	assert.Nil(t, forwarded[0].Data)
}

func TestChangeStreamHandler_FiltersActions(t *testing.T) {
	registry, _, rec := setup(t)
	h := NewChangeStreamHandler("dashboard.sales", []string{"created", " UPDATED "}, registry)

	require.NoError(t, h.Handle(context.Background(), &domain.Message{Entity: "sales", Action: "snapshot"}))
	require.NoError(t, h.Handle(context.Background(), &domain.Message{Action: "created"}))
	require.NoError(t, h.Handle(context.Background(), &domain.Message{Entity: "restaurant", Action: "created"}))
	assert.Empty(t, rec.topics())
	assert.Empty(t, rec.changes)
}

func TestChangeStreamHandler_NotifiesOnlySessionsShowingTheEntity(t *testing.T) {
	registry, _, rec := setup(t)
	watching, _, err := registry.Open("watching", "user-a", "tok-a")
	require.NoError(t, err)
	watching.Select(selection.ScopeCopypoint, &selection.Ref{ID: "5"})
	_, _, err = registry.Open("elsewhere", "user-b", "tok-b")
	require.NoError(t, err)

	h := NewChangeStreamHandler("dashboard.sales", nil, registry)
	require.NoError(t, h.Handle(context.Background(), &domain.Message{Entity: "sale", Action: "updated", ResourceID: "s-1"}))

	forwarded := rec.forwarded()
	require.Len(t, forwarded, 1)
	assert.Equal(t, "sales.updated", forwarded[0].Topic)
	assert.Equal(t, "watching", forwarded[0].Metadata["sessionId"])
}
