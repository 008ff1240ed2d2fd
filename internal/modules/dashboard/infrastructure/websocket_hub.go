package infrastructure

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/shared/logging"
)

// HubMetrics receives connection lifecycle events.
type HubMetrics interface {
	ClientConnected()
	ClientDisconnected()
}

type nopHubMetrics struct{}

func (nopHubMetrics) ClientConnected()    {}
func (nopHubMetrics) ClientDisconnected() {}

type HubOption func(*Hub)

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logging.Component(logger, "ws-hub")
		}
	}
}

func WithHubMetrics(m HubMetrics) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// Hub fans messages out to websocket clients by topic. Messages whose metadata
// carries a sessionId or userId only reach the matching clients.
type Hub struct {
	topics  map[string]map[*Client]struct{}
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *slog.Logger
	metrics HubMetrics
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics:  make(map[string]map[*Client]struct{}),
		clients: make(map[string]*Client),
		logger:  logging.Component(slog.Default(), "ws-hub"),
		metrics: nopHubMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	existing, ok := h.clients[c.key()]
	replaced := ok && existing != c && h.detachLocked(existing)
	h.clients[c.key()] = c
	h.metrics.ClientConnected()
	h.mu.Unlock()

	if replaced {
		existing.invokeCloseHooks()
	}
	h.logger.Info("ws client registered", c.logAttrs()...)
}

func (h *Hub) subscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.key()]; !ok {
		return
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	c.subscribed[topic] = struct{}{}
}

func (h *Hub) unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(c.subscribed, topic)
	h.logger.Debug("ws client unsubscribed", append(c.logAttrs(), slog.String("topic", topic))...)
}

// Topics returns the topics the client currently receives.
func (h *Hub) Topics(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.subscribed))
	for topic := range c.subscribed {
		out = append(out, topic)
	}
	return out
}

func (h *Hub) detachClient(c *Client) {
	h.mu.Lock()
	closed := h.detachLocked(c)
	h.mu.Unlock()
	if closed {
		c.invokeCloseHooks()
	}
}

// detachLocked reports whether this call closed the client; close hooks must then
// run once h.mu is released.
func (h *Hub) detachLocked(c *Client) bool {
	if c == nil {
		return false
	}
	for topic := range c.subscribed {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	c.subscribed = make(map[string]struct{})
	if current, ok := h.clients[c.key()]; ok && current == c {
		delete(h.clients, c.key())
		h.metrics.ClientDisconnected()
	}
	if !c.close() {
		return false
	}
	h.logger.Info("ws client detached", c.logAttrs()...)
	return true
}

// Broadcast implements port.Broadcaster.
func (h *Hub) Broadcast(_ context.Context, msg *domain.Message) {
	if msg == nil || msg.Topic == "" {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast marshal error", slog.String("topic", msg.Topic), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	subs := h.topics[msg.Topic]
	clients := make([]*Client, 0, len(subs))
	for c := range subs {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	targetUser := ""
	targetSession := ""
	if msg.Metadata != nil {
		targetUser = strings.TrimSpace(msg.Metadata["userId"])
		targetSession = strings.TrimSpace(msg.Metadata["sessionId"])
	}

	for _, c := range clients {
		if targetUser != "" && c.userID != targetUser {
			continue
		}
		if targetSession != "" && c.sessionID != targetSession {
			continue
		}
		if !c.enqueue(data) {
			h.logger.Warn("ws send buffer full", c.logAttrs()...)
			go h.detachClient(c)
		}
	}
}

// AttachClient registers the client, replacing an earlier connection of the same
// session, and subscribes it to topics.
func (h *Hub) AttachClient(c *Client, topics []string) {
	h.registerClient(c)
	for _, topic := range topics {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			h.subscribe(c, trimmed)
		}
	}
	h.logger.Info("ws client attached", append(c.logAttrs(), slog.Any("topics", topics))...)
}

// Connected reports whether any client of the session is attached.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.sessionID == sessionID {
			return true
		}
	}
	return false
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var closed []*Client
	for _, c := range h.clients {
		if h.detachLocked(c) {
			closed = append(closed, c)
		}
	}
	h.mu.Unlock()
	for _, c := range closed {
		c.invokeCloseHooks()
	}
}
