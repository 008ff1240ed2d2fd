package infrastructure

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bizdash/internal/modules/dashboard/domain"
)

const defaultCommandTimeout = 10 * time.Second

// Command is an inbound websocket frame.
type Command struct {
	Action  string          `json:"action"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c Command) actionKey() string {
	return normalizeAction(c.Action)
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (c Command) Decode(v any) error {
	if len(c.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(c.Payload, v)
}

type CommandHandler func(ctx context.Context, client *Client, cmd Command)

// CommandProcessor routes commands by action. Commands run in arrival order on
// the client's read loop, each bounded by a timeout.
type CommandProcessor struct {
	hub      *Hub
	mu       sync.RWMutex
	handlers map[string]CommandHandler
	timeout  time.Duration
}

func NewCommandProcessor(hub *Hub) *CommandProcessor {
	processor := &CommandProcessor{
		hub:      hub,
		handlers: make(map[string]CommandHandler),
		timeout:  defaultCommandTimeout,
	}
	processor.Register("subscribe", processor.handleSubscribe)
	processor.Register("unsubscribe", processor.handleUnsubscribe)
	processor.Register("ping", processor.handlePing)
	return processor
}

func (p *CommandProcessor) Register(action string, handler CommandHandler) {
	if handler == nil {
		return
	}
	key := normalizeAction(action)
	if key == "" {
		return
	}
	p.mu.Lock()
	p.handlers[key] = handler
	p.mu.Unlock()
}

func (p *CommandProcessor) Process(client *Client, cmd Command) {
	if client == nil {
		return
	}

	action := cmd.actionKey()
	if action == "" {
		client.SendError("invalid_command", "missing action", nil)
		return
	}

	p.mu.RLock()
	handler, ok := p.handlers[action]
	p.mu.RUnlock()
	if !ok {
		client.logger.Debug("ws command ignored", append(client.logAttrs(), slog.String("action", action))...)
		client.SendError("unknown_action", "unknown action "+action, map[string]string{"action": action})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	handler(ctx, client, cmd)
}

func (p *CommandProcessor) handleSubscribe(_ context.Context, client *Client, cmd Command) {
	topic := strings.TrimSpace(cmd.Topic)
	if topic == "" {
		client.SendError("invalid_command", "missing topic", map[string]string{"action": "subscribe"})
		return
	}
	p.hub.subscribe(client, topic)
	client.logger.Debug("ws subscribe", append(client.logAttrs(), slog.String("topic", topic))...)
}

func (p *CommandProcessor) handleUnsubscribe(_ context.Context, client *Client, cmd Command) {
	topic := strings.TrimSpace(cmd.Topic)
	if topic == "" {
		return
	}
	p.hub.unsubscribe(client, topic)
}

func (p *CommandProcessor) handlePing(_ context.Context, client *Client, _ Command) {
	client.SendDomainMessage(&domain.Message{
		Topic:     domain.TopicSystemPong,
		Entity:    domain.SystemEntity,
		Action:    domain.ActionPong,
		Timestamp: time.Now().UTC(),
	})
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}
