package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"bizdash/internal/shared/auth"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultTimeout = 10 * time.Second
	errorBodyLimit = 2048
)

// Config holds the transport settings shared by every resource service.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	UserAgent string
}

// Request describes one upstream call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Token  string
	Body   any
}

// Observer receives one callback per completed request. Status is 0 when no
// response was received.
type Observer interface {
	ObserveRequest(method string, status int, elapsed time.Duration)
}

// Gateway is the single configured transport used by all resource services.
type Gateway struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	observer  Observer
	logger    *slog.Logger
	newID     func() string
}

// New builds a Gateway. A nil client gets a fresh http.Client with the configured
// timeout; a supplied client is copied before the timeout is applied.
func New(cfg Config, client *http.Client, logger *slog.Logger) *Gateway {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	} else if cfg.Timeout > 0 {
		copied := *client
		copied.Timeout = cfg.Timeout
		client = &copied
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		baseURL:   base,
		client:    client,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		logger:    logger.With(slog.String("component", "gateway")),
		newID:     func() string { return uuid.NewString() },
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

// WithObserver attaches a request observer (metrics) and returns the gateway.
func (g *Gateway) WithObserver(o Observer) *Gateway {
	g.observer = o
	return g
}

// BaseURL returns the normalized upstream base URL.
func (g *Gateway) BaseURL() string { return g.baseURL }

// Do executes req and decodes a 2xx JSON body into out when out is non-nil.
// Failures are always one of *TransportError, *AuthError, *HTTPError or *DecodeError.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target := g.baseURL + "/" + strings.TrimLeft(strings.TrimSpace(req.Path), "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := g.newID()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if header := auth.BearerHeader(req.Token); header != "" {
		httpReq.Header.Set("Authorization", header)
	}
	if g.userAgent != "" {
		httpReq.Header.Set("User-Agent", g.userAgent)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return &TransportError{Method: method, URL: target, Err: err}
		}
	}

	started := time.Now()
	g.logger.Debug("gateway request", slog.String("method", method), slog.String("url", target), slog.String("requestId", requestID))
	res, err := g.client.Do(httpReq)
	if err != nil {
		g.observe(method, 0, started)
		if errors.Is(err, context.Canceled) {
			g.logger.Debug("gateway request cancelled", slog.String("method", method), slog.String("url", target))
		} else {
			g.logger.Warn("gateway request error", slog.String("method", method), slog.String("url", target), slog.String("requestId", requestID), slog.Any("error", err))
		}
		return &TransportError{Method: method, URL: target, Err: err}
	}
	defer res.Body.Close()
	g.observe(method, res.StatusCode, started)
	g.logger.Debug("gateway response", slog.Int("status", res.StatusCode), slog.String("url", target), slog.Duration("elapsed", time.Since(started)))

	return g.intercept(res, method, target, out)
}

// intercept passes successes through and turns failures into the shared error shape.
func (g *Gateway) intercept(res *http.Response, method, target string, out any) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if out == nil || res.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, res.Body)
			return nil
		}
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return &TransportError{Method: method, URL: target, Err: err}
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			g.logger.Warn("gateway decode failed", slog.String("url", target), slog.Any("error", err))
			return &DecodeError{Err: err}
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(res.Body, errorBodyLimit))
	text := strings.TrimSpace(string(raw))
	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		g.logger.Warn("gateway authorization rejected", slog.Int("status", res.StatusCode), slog.String("url", target))
		return &AuthError{Status: res.StatusCode, Body: text}
	default:
		if res.StatusCode >= http.StatusInternalServerError {
			g.logger.Error("gateway unexpected status", slog.Int("status", res.StatusCode), slog.String("url", target), slog.String("body", text))
		}
		return &HTTPError{Status: res.StatusCode, Body: text}
	}
}

func (g *Gateway) observe(method string, status int, started time.Time) {
	if g.observer == nil {
		return
	}
	g.observer.ObserveRequest(method, status, time.Since(started))
}
