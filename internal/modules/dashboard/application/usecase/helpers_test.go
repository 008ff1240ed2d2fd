package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/modules/query"
	resinfra "bizdash/internal/modules/resources/infrastructure"
	"bizdash/internal/platform/gateway"
	"bizdash/internal/shared/logging"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type respondFunc func(req gateway.Request) (any, error)

// fakeBackend answers gateway requests by "METHOD path".
type fakeBackend struct {
	mu       sync.Mutex
	calls    []gateway.Request
	handlers map[string]respondFunc
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{handlers: make(map[string]respondFunc)}
}

func (f *fakeBackend) on(method, path string, fn respondFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+path] = fn
}

func (f *fakeBackend) Do(_ context.Context, req gateway.Request, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.handlers[req.Method+" "+req.Path]
	f.mu.Unlock()

	if fn == nil {
		return &gateway.HTTPError{Status: http.StatusNotFound}
	}
	value, err := fn(req)
	if err != nil {
		return err
	}
	if out == nil || value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeBackend) requests(method, path string) []gateway.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.Request
	for _, req := range f.calls {
		if req.Method == method && req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

func (f *fakeBackend) count(method, path string) int {
	return len(f.requests(method, path))
}

func page(items ...any) map[string]any {
	if items == nil {
		items = []any{}
	}
	return map[string]any{
		"content":       items,
		"totalElements": len(items),
		"totalPages":    1,
		"pageNumber":    0,
	}
}

func listOf(items ...any) respondFunc {
	return func(gateway.Request) (any, error) { return page(items...), nil }
}

// defaultBackend serves every dashboard collection with one item.
func defaultBackend() *fakeBackend {
	b := newFakeBackend()
	b.on(http.MethodGet, "/api/v1/stores", listOf(map[string]any{"id": "1", "name": "Centro"}))
	b.on(http.MethodGet, "/api/v1/copypoints", listOf(map[string]any{"id": "5", "storeId": "1", "name": "Caja 1"}))
	b.on(http.MethodGet, "/api/v1/sales", listOf(map[string]any{"id": "s-1", "copypointId": "5", "status": "PENDING", "total": 10}))
	b.on(http.MethodGet, "/api/v1/sales/s-1", func(gateway.Request) (any, error) {
		return map[string]any{"id": "s-1", "copypointId": "5", "status": "PENDING", "total": 10}, nil
	})
	b.on(http.MethodGet, "/api/v1/payments", listOf())
	b.on(http.MethodGet, "/api/v1/conversations", listOf(map[string]any{"id": "c-1", "copypointId": "5"}))
	b.on(http.MethodGet, "/api/v1/messages", listOf())
	b.on(http.MethodGet, "/api/v1/attachments", listOf())
	b.on(http.MethodGet, "/api/v1/integrations", listOf())
	return b
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, msg *domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingBroadcaster) byTopic(topic string) []*domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, msg := range r.msgs {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

type countingMetrics struct {
	mu      sync.Mutex
	opened  int
	closed  int
	changes []string
}

func (m *countingMetrics) SessionOpened() { m.mu.Lock(); m.opened++; m.mu.Unlock() }
func (m *countingMetrics) SessionClosed() { m.mu.Lock(); m.closed++; m.mu.Unlock() }
func (m *countingMetrics) ChangeApplied(entity, action string) {
	m.mu.Lock()
	m.changes = append(m.changes, entity+"."+action)
	m.mu.Unlock()
}

type fixture struct {
	backend *fakeBackend
	client  *query.Client
	out     *recordingBroadcaster
	metrics *countingMetrics
	deps    SessionDeps
}

func newFixture(t *testing.T, backend *fakeBackend) *fixture {
	t.Helper()
	logger := logging.Discard()
	client := query.NewClient(query.Config{
		Retry: query.RetryPolicy{MaxRetries: 0, InitialInterval: time.Millisecond},
	}, query.WithLogger(logger))
	t.Cleanup(client.Shutdown)

	f := &fixture{
		backend: backend,
		client:  client,
		out:     &recordingBroadcaster{},
		metrics: &countingMetrics{},
	}
	f.deps = SessionDeps{
		Client:      client,
		Services:    resinfra.NewServices(backend, logger),
		Broadcaster: f.out,
		Metrics:     f.metrics,
		Logger:      logger,
	}
	return f
}

func (f *fixture) session(t *testing.T, token string) *Session {
	t.Helper()
	s := NewSession("sid-1", "user-1", token, f.deps)
	t.Cleanup(s.Close)
	return s
}

func viewStatus(s *Session, view domain.View) query.Status {
	st, err := s.ViewState(view)
	if err != nil {
		return ""
	}
	return st.Status
}
