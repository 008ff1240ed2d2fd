package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/shared/logging"
)

type sale struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}, nil, logging.Discard())
}

func TestGateway_DoSetsHeadersAndDecodes(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sales", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("copypointId"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "pending", in["status"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"s-1","status":"pending"}`))
	})

	var out sale
	err := gw.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "api/v1/sales",
		Query:  url.Values{"copypointId": {"5"}},
		Token:  " tok ",
		Body:   map[string]string{"status": "pending"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, sale{ID: "s-1", Status: "pending"}, out)
}

func TestGateway_ClassifiesFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				require.ErrorAs(t, err, &authErr)
				assert.Equal(t, http.StatusUnauthorized, authErr.Status)
				assert.Equal(t, KindAuth, Classify(err))
				assert.False(t, Retryable(err))
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				require.ErrorAs(t, err, &authErr)
				assert.Equal(t, "forbidden", authErr.Error())
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"message":"missing"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
				assert.False(t, Retryable(err))
				assert.Equal(t, http.StatusNotFound, StatusOf(err))
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var httpErr *HTTPError
				require.ErrorAs(t, err, &httpErr)
				assert.Equal(t, "upstream down", httpErr.Body)
				assert.True(t, Retryable(err))
				assert.NotErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name:   "decode",
			status: http.StatusOK,
			body:   `{"id": 12`,
			check: func(t *testing.T, err error) {
				var decodeErr *DecodeError
				require.ErrorAs(t, err, &decodeErr)
				assert.Equal(t, KindDecode, Classify(err))
				assert.False(t, Retryable(err))
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			var out sale
			err := gw.Do(context.Background(), Request{Path: "/api/v1/sales/1", Token: "tok"}, &out)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestGateway_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	gw := New(Config{BaseURL: base}, nil, logging.Discard())
	err := gw.Do(context.Background(), Request{Path: "/api/v1/stores"}, nil)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.MethodGet, transportErr.Method)
	assert.True(t, Retryable(err))
	assert.Equal(t, KindTransport, Classify(err))
}

func TestGateway_CancelledContextIsNotRetryable(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gw.Do(ctx, Request{Path: "/api/v1/stores"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, Retryable(err))
}

func TestGateway_EmptyBodyLeavesOutUntouched(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	out := sale{ID: "keep"}
	require.NoError(t, gw.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/api/v1/sales/1"}, &out))
	assert.Equal(t, "keep", out.ID)
}

type recordingObserver struct {
	statuses []int
}

func (r *recordingObserver) ObserveRequest(_ string, status int, _ time.Duration) {
	r.statuses = append(r.statuses, status)
}

func TestGateway_ObserverSeesStatus(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	obs := &recordingObserver{}
	gw.WithObserver(obs)

	_ = gw.Do(context.Background(), Request{Path: "/x"}, nil)
	assert.Equal(t, []int{http.StatusInternalServerError}, obs.statuses)
}

func TestNew_Defaults(t *testing.T) {
	gw := New(Config{}, nil, nil)
	assert.Equal(t, defaultBaseURL, gw.BaseURL())
	assert.Equal(t, defaultTimeout, gw.client.Timeout)
	assert.Nil(t, gw.limiter)

	limited := New(Config{RateLimit: 5}, nil, nil)
	require.NotNil(t, limited.limiter)
	assert.Equal(t, 1, limited.limiter.Burst())
}

func TestNew_DoesNotMutateSuppliedClient(t *testing.T) {
	shared := &http.Client{}
	gw := New(Config{Timeout: 3 * time.Second}, shared, nil)

	assert.Zero(t, shared.Timeout)
	assert.Equal(t, 3*time.Second, gw.client.Timeout)
	assert.NotSame(t, shared, gw.client)
}
