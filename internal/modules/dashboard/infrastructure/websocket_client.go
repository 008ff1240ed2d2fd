package infrastructure

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bizdash/internal/modules/dashboard/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 16

	defaultSendBuffer = 64
)

// ClientInfo identifies the dashboard session behind a connection.
type ClientInfo struct {
	UserID    string
	SessionID string
}

type Client struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	userID     string
	sessionID  string
	commands   *CommandProcessor
	subscribed map[string]struct{}
	logger     *slog.Logger

	sendMu sync.RWMutex
	closed bool

	closeHooks []func(*Client)
	hookMu     sync.Mutex
}

// NewClient wraps conn; buf is the outbound queue length (default 64). The
// returned client answers subscribe, unsubscribe and ping; further commands are
// added through Commands().Register.
func NewClient(hub *Hub, conn *websocket.Conn, info ClientInfo, buf int) *Client {
	if buf <= 0 {
		buf = defaultSendBuffer
	}
	client := &Client{
		id:         uuid.NewString(),
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, buf),
		userID:     strings.TrimSpace(info.UserID),
		sessionID:  strings.TrimSpace(info.SessionID),
		subscribed: make(map[string]struct{}),
		logger:     hub.logger,
	}
	client.commands = NewCommandProcessor(hub)
	return client
}

func (c *Client) ID() string        { return c.id }
func (c *Client) UserID() string    { return c.userID }
func (c *Client) SessionID() string { return c.sessionID }

// Commands returns the processor handling inbound frames.
func (c *Client) Commands() *CommandProcessor { return c.commands }

func (c *Client) key() string {
	return c.userID + ":" + c.sessionID
}

func (c *Client) logAttrs() []any {
	return []any{
		slog.String("clientId", c.id),
		slog.String("userId", c.userID),
		slog.String("sessionId", c.sessionID),
	}
}

// close shuts the queue and the connection; it reports whether this call did so.
func (c *Client) close() bool {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return false
	}
	c.closed = true
	close(c.send)
	c.sendMu.Unlock()
	_ = c.conn.Close()
	return true
}

// enqueue reports false only when the queue is full; frames for closed clients
// are dropped.
func (c *Client) enqueue(data []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// AddCloseHook registers a callback run once after the client is detached.
func (c *Client) AddCloseHook(fn func(*Client)) {
	if fn == nil {
		return
	}
	c.hookMu.Lock()
	c.closeHooks = append(c.closeHooks, fn)
	c.hookMu.Unlock()
}

func (c *Client) invokeCloseHooks() {
	c.hookMu.Lock()
	hooks := append([]func(*Client){}, c.closeHooks...)
	c.closeHooks = nil
	c.hookMu.Unlock()

	for _, hook := range hooks {
		func(h func(*Client)) {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn("ws close hook panic", slog.Any("error", r))
				}
			}()
			h(c)
		}(hook)
	}
}

// SendDomainMessage queues msg for this client only.
func (c *Client) SendDomainMessage(msg *domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("websocket marshal error", append(c.logAttrs(), slog.Any("error", err))...)
		return
	}
	if !c.enqueue(data) {
		c.logger.Warn("websocket send buffer full", c.logAttrs()...)
		go c.hub.detachClient(c)
	}
}

// SendError reports a failed command to the client on system.error.
func (c *Client) SendError(code, message string, extra map[string]string) {
	metadata := map[string]string{"code": code}
	for k, v := range extra {
		metadata[k] = v
	}
	c.SendDomainMessage(&domain.Message{
		Topic:     domain.TopicSystemError,
		Entity:    domain.SystemEntity,
		Action:    domain.ActionError,
		Metadata:  metadata,
		Data:      map[string]string{"error": message},
		Timestamp: time.Now().UTC(),
	})
}

func (c *Client) WritePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.hub.detachClient(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("websocket write error", append(c.logAttrs(), slog.Any("error", err))...)
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("websocket ping error", append(c.logAttrs(), slog.Any("error", err))...)
				return
			}
		}
	}
}

func (c *Client) ReadPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	defer c.hub.detachClient(c)
	for {
		var cmd Command
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read error", append(c.logAttrs(), slog.Any("error", err))...)
			}
			return
		}
		c.commands.Process(c, cmd)
	}
}
