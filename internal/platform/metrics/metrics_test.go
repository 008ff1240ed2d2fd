package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/platform/gateway"
)

func TestRegistry_RecordsQueryEvents(t *testing.T) {
	r := New()

	r.CacheHit()
	r.CacheHit()
	r.CacheMiss()
	r.FetchStarted()
	r.FetchRetried()
	r.FetchDiscarded()
	r.Evicted()
	r.FetchFinished(nil, 20*time.Millisecond)
	r.FetchFinished(&gateway.AuthError{Status: http.StatusUnauthorized}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues("auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchDiscarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.evictions))
}

func TestRegistry_ObserveRequest(t *testing.T) {
	r := New()
	r.ObserveRequest("get", 200, time.Millisecond)
	r.ObserveRequest("GET", 503, time.Millisecond)
	r.ObserveRequest("post", 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.upstreamRequests.WithLabelValues("GET", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.upstreamRequests.WithLabelValues("GET", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.upstreamRequests.WithLabelValues("POST", "error")))
}

func TestRegistry_DashboardGauges(t *testing.T) {
	r := New()
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()
	r.ClientConnected()
	r.ChangeApplied("sales", "updated")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.wsClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.changes.WithLabelValues("sales", "updated")))
}

func TestRegistry_Middleware(t *testing.T) {
	r := New()
	e := echo.New()
	e.Use(r.Middleware())
	e.GET("/api/views/:view", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"view": c.Param("view")})
	})
	e.GET("/api/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "nope")
	})
	e.GET("/metrics", echo.WrapHandler(r.Handler()))

	for _, path := range []string{"/api/views/sales", "/api/views/stores", "/api/fail"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", "/api/views/:view", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", "/api/fail", "400")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.httpInFlight))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "bizdash_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestRegistry_GathersWithoutErrors(t *testing.T) {
	r := New()
	r.FetchFinished(errors.New("boom"), time.Millisecond)
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues("other")))
}
