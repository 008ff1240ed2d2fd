package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bizdash/internal/platform/gateway"
)

const namespace = "bizdash"

// Registry owns the service's collectors. It implements query.Recorder and
// gateway.Observer so both layers report into the same registry.
type Registry struct {
	reg *prometheus.Registry

	cacheLookups   *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	fetchRetries   prometheus.Counter
	fetchDiscarded prometheus.Counter
	fetchDuration  *prometheus.HistogramVec
	evictions      prometheus.Counter

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	sessions  prometheus.Gauge
	wsClients prometheus.Gauge
	changes   *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "cache_lookups_total",
			Help:      "Cache reads by result.",
		}, []string{"result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetches_total",
			Help:      "Query fetches by outcome.",
		}, []string{"outcome"}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetch_retries_total",
			Help:      "Retries of transient fetch failures.",
		}),
		fetchDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetch_discarded_total",
			Help:      "Fetch results dropped because the request was superseded or abandoned.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of query fetches including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"outcome"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "evictions_total",
			Help:      "Idle cache entries dropped by size or age.",
		}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Upstream REST requests by method and status class.",
		}, []string{"method", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of upstream REST requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "sessions",
			Help:      "Open dashboard sessions.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "change_events_total",
			Help:      "Upstream change events applied to the cache.",
		}, []string{"entity", "action"}),
	}
	r.reg.MustRegister(
		r.cacheLookups,
		r.fetches,
		r.fetchRetries,
		r.fetchDiscarded,
		r.fetchDuration,
		r.evictions,
		r.upstreamRequests,
		r.upstreamDuration,
		r.httpInFlight,
		r.httpRequests,
		r.httpDuration,
		r.sessions,
		r.wsClients,
		r.changes,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return r
}

// Gatherer exposes the underlying registry for tests and custom handlers.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) CacheHit()       { r.cacheLookups.WithLabelValues("hit").Inc() }
func (r *Registry) CacheMiss()      { r.cacheLookups.WithLabelValues("miss").Inc() }
func (r *Registry) FetchStarted()   { r.fetches.WithLabelValues("started").Inc() }
func (r *Registry) FetchRetried()   { r.fetchRetries.Inc() }
func (r *Registry) FetchDiscarded() { r.fetchDiscarded.Inc() }
func (r *Registry) Evicted()        { r.evictions.Inc() }

func (r *Registry) FetchFinished(err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = string(gateway.Classify(err))
	}
	r.fetches.WithLabelValues(outcome).Inc()
	r.fetchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveRequest records one upstream call; status 0 means no response.
func (r *Registry) ObserveRequest(method string, status int, elapsed time.Duration) {
	r.upstreamRequests.WithLabelValues(strings.ToUpper(method), statusClass(status)).Inc()
	r.upstreamDuration.WithLabelValues(strings.ToUpper(method)).Observe(elapsed.Seconds())
}

func (r *Registry) SessionOpened()      { r.sessions.Inc() }
func (r *Registry) SessionClosed()      { r.sessions.Dec() }
func (r *Registry) ClientConnected()    { r.wsClients.Inc() }
func (r *Registry) ClientDisconnected() { r.wsClients.Dec() }
func (r *Registry) ChangeApplied(entity, action string) {
	r.changes.WithLabelValues(entity, action).Inc()
}

// Middleware records request counts and latency by route template.
func (r *Registry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()
			r.httpInFlight.Inc()
			defer r.httpInFlight.Dec()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)
			r.httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Response().Status)).Inc()
			r.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
