package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/modules/resources/domain"
	"bizdash/internal/platform/gateway"
	"bizdash/internal/shared/logging"
)

func newServices(t *testing.T, handler http.HandlerFunc) *Services {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw := gateway.New(gateway.Config{BaseURL: srv.URL}, nil, logging.Discard())
	return NewServices(gw, logging.Discard())
}

func TestServiceList_ScopedPage(t *testing.T) {
	t.Parallel()

	services := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sales", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("copypointId"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "2", q.Get("size"))
		assert.Equal(t, "PENDING", q.Get("status"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":       []map[string]any{{"id": "s-3", "status": "PENDING"}, {"id": "s-4", "status": "PENDING"}},
			"totalElements": 5,
			"totalPages":    3,
			"pageNumber":    1,
		})
	})

	page, err := services.Sales.List(context.Background(), "tok", map[string]string{"copypointId": "5"},
		domain.PagedQuery{Page: 1, Size: 2, Filters: map[string]string{"status": "PENDING"}})
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "s-3", page.Content[0].ID)
	assert.Equal(t, domain.SaleStatusPending, page.Content[1].Status)
	assert.Equal(t, 5, page.TotalElements)
	assert.True(t, page.HasNext())
}

func TestServiceList_ShapeMismatchIsDecodeError(t *testing.T) {
	t.Parallel()

	services := newServices(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"id":"a"},{"id":"b"},{"id":"c"}],"totalElements":3,"totalPages":1,"pageNumber":0}`))
	})

	_, err := services.Stores.List(context.Background(), "tok", nil, domain.PagedQuery{Size: 2})
	var decodeErr *gateway.DecodeError
	require.ErrorAs(t, err, &decodeErr)

	services = newServices(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, err = services.Stores.List(context.Background(), "tok", nil, domain.PagedQuery{})
	require.ErrorAs(t, err, &decodeErr)
}

func TestService_ContractViolationsSkipNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	services := newServices(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	_, err := services.Copypoints.List(ctx, "tok", map[string]string{"storeId": " "}, domain.PagedQuery{})
	assert.ErrorIs(t, err, ErrMissingParam)

	_, err = services.Copypoints.List(ctx, "", map[string]string{"storeId": "1"}, domain.PagedQuery{})
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = services.Sales.Get(ctx, "tok", "")
	assert.ErrorIs(t, err, ErrMissingParam)

	_, err = services.Sales.Update(ctx, "tok", "  ", domain.SaleInput{})
	assert.ErrorIs(t, err, ErrMissingParam)

	assert.ErrorIs(t, services.Sales.Delete(ctx, "", "1"), ErrMissingToken)

	_, err = services.Sales.AttachFile(ctx, "tok", "s-1", "")
	assert.ErrorIs(t, err, ErrMissingParam)

	_, err = services.Messages.Send(ctx, "tok", "", domain.MessageInput{Body: "hi"})
	assert.ErrorIs(t, err, ErrMissingParam)

	assert.Zero(t, calls.Load())
}

func TestServiceGet_NotFound(t *testing.T) {
	t.Parallel()

	services := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sales/s%2F9", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := services.Sales.Get(context.Background(), "tok", "s/9")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestServiceSingle_EmptyBodyIsDecodeError(t *testing.T) {
	t.Parallel()

	services := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			_, _ = w.Write([]byte("null"))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	sale, err := services.Sales.Get(ctx, "tok", "s-1")
	assert.Nil(t, sale)
	var decodeErr *gateway.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, gateway.KindDecode, gateway.Classify(err))

	_, err = services.Sales.Create(ctx, "tok", map[string]string{"copypointId": "5"}, domain.SaleInput{Total: 1})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	_, err = services.Sales.Update(ctx, "tok", "s-1", domain.SaleInput{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	_, err = services.Sales.AttachFile(ctx, "tok", "s-1", "a-1")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestServiceMutations(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen []string
	)
	services := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sales":
			assert.Equal(t, "5", r.URL.Query().Get("copypointId"))
			var in domain.SaleInput
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			_ = json.NewEncoder(w).Encode(domain.Sale{ID: "s-1", CopypointID: "5", Total: in.Total, Status: domain.SaleStatusPending})
		case r.Method == http.MethodPut:
			_ = json.NewEncoder(w).Encode(domain.Sale{ID: "s-1", Status: domain.SaleStatusPaid})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/v1/sales/s-1/attachments":
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			_ = json.NewEncoder(w).Encode(domain.Attachment{ID: in["attachmentId"], SaleID: "s-1"})
		case r.URL.Path == "/api/v1/messages":
			assert.Equal(t, "c-1", r.URL.Query().Get("conversationId"))
			_ = json.NewEncoder(w).Encode(domain.Message{ID: "m-1", ConversationID: "c-1", Body: "hola"})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	created, err := services.Sales.Create(ctx, "tok", map[string]string{"copypointId": "5"}, domain.SaleInput{Total: 12})
	require.NoError(t, err)
	assert.Equal(t, 12.0, created.Total)

	updated, err := services.Sales.Update(ctx, "tok", "s-1", domain.SaleInput{Status: domain.SaleStatusPaid})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPaid, updated.Status)

	require.NoError(t, services.Sales.Delete(ctx, "tok", "s-1"))

	att, err := services.Sales.AttachFile(ctx, "tok", "s-1", "a-7")
	require.NoError(t, err)
	assert.Equal(t, "a-7", att.ID)

	msg, err := services.Messages.Send(ctx, "tok", "c-1", domain.MessageInput{Body: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /api/v1/sales",
		"PUT /api/v1/sales/s-1",
		"DELETE /api/v1/sales/s-1",
		"POST /api/v1/sales/s-1/attachments",
		"POST /api/v1/messages",
	}, seen)
}
