package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"bizdash/internal/modules/dashboard/application/usecase"
	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/modules/dashboard/infrastructure"
	"bizdash/internal/modules/selection"
)

// warmTimeout bounds how long a new socket waits for its views before the first
// state snapshot.
const warmTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebsocketConfig tunes the dashboard socket.
type WebsocketConfig struct {
	SendBuffer int
}

// sessionTopics lists what every dashboard socket receives without subscribing.
func sessionTopics() []string {
	views := domain.Views()
	topics := make([]string, 0, len(views)+2)
	for _, view := range views {
		topics = append(topics, domain.ViewTopic(view))
	}
	return append(topics, domain.TopicSelectionChanged, domain.TopicSelectionSnapshot)
}

// NewWebsocketHandler serves /ws/dashboard. It must run behind the auth
// middleware. The socket gets system.connected, the selection snapshot and one
// message per view, then live view.* and selection.changed pushes. The session
// is closed once its last socket disconnects.
func NewWebsocketHandler(hub *infrastructure.Hub, sessions *usecase.SessionRegistry, cfg WebsocketConfig, logger *slog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := sessionFrom(c)
		if err != nil {
			return err
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.Warn("ws upgrade failed", slog.String("sessionId", session.ID()), slog.Any("error", err))
			return nil
		}

		var roles []string
		if claims := claimsFrom(c); claims != nil {
			roles = claims.Roles
		}

		client := infrastructure.NewClient(hub, conn, infrastructure.ClientInfo{
			UserID:    session.Subject(),
			SessionID: session.ID(),
		}, cfg.SendBuffer)
		registerSessionCommands(client, session)
		session.Retain()
		client.AddCloseHook(func(cl *infrastructure.Client) {
			if session.Release() > 0 || hub.Connected(cl.SessionID()) {
				return
			}
			if sessions.Close(cl.SessionID()) {
				logger.Info("dashboard session released", slog.String("sessionId", cl.SessionID()))
			}
		})

		topics := sessionTopics()
		hub.AttachClient(client, topics)

		go client.WritePump()
		go client.ReadPump()

		client.SendDomainMessage(&domain.Message{
			Topic:    domain.TopicSystemConnected,
			Entity:   domain.SystemEntity,
			Action:   domain.ActionConnected,
			Metadata: domain.SessionMetadata(session.ID(), map[string]string{"userId": session.Subject()}),
			Data: map[string]any{
				"sessionId": session.ID(),
				"topics":    topics,
				"views":     domain.Views(),
				"roles":     roles,
			},
			Timestamp: time.Now().UTC(),
		})

		warmCtx, cancel := context.WithTimeout(c.Request().Context(), warmTimeout)
		if err := session.Warm(warmCtx); err != nil {
			logger.Debug("ws warm-up incomplete", slog.String("sessionId", session.ID()), slog.Any("error", err))
		}
		cancel()
		sendSessionState(client, session)

		logger.Info("ws connected",
			slog.String("sessionId", session.ID()),
			slog.String("userId", session.Subject()),
			slog.String("ip", c.RealIP()),
		)
		return nil
	}
}

// sendSessionState pushes the selection and every view state to one socket.
func sendSessionState(client *infrastructure.Client, session *usecase.Session) {
	now := time.Now().UTC()
	store := session.Selection()
	client.SendDomainMessage(&domain.Message{
		Topic:     domain.TopicSelectionSnapshot,
		Entity:    domain.SelectionEntity,
		Action:    domain.ActionSnapshot,
		Metadata:  domain.SessionMetadata(session.ID(), nil),
		Data:      selectionOf(store),
		Timestamp: now,
	})
	for _, state := range session.ViewStates() {
		client.SendDomainMessage(&domain.Message{
			Topic:     domain.ViewTopic(state.View),
			Entity:    domain.ViewEntity,
			Action:    domain.ActionState,
			Metadata:  domain.SessionMetadata(session.ID(), map[string]string{"view": string(state.View)}),
			Data:      state,
			Timestamp: now,
		})
	}
}

func registerSessionCommands(client *infrastructure.Client, session *usecase.Session) {
	commands := client.Commands()

	commands.Register("select", func(_ context.Context, cl *infrastructure.Client, cmd infrastructure.Command) {
		var body domain.SelectCommand
		if err := cmd.Decode(&body); err != nil {
			cl.SendError("invalid_payload", "invalid payload", map[string]string{"action": "select"})
			return
		}
		scope, err := selection.ParseScope(body.Scope)
		if err != nil {
			cl.SendError("invalid_command", err.Error(), map[string]string{"action": "select"})
			return
		}
		if body.Ref != nil && strings.TrimSpace(body.Ref.ID) == "" {
			body.Ref = nil
		}
		session.Select(scope, body.Ref)
	})

	commands.Register("reset", func(_ context.Context, cl *infrastructure.Client, cmd infrastructure.Command) {
		var body domain.ResetCommand
		if err := cmd.Decode(&body); err != nil {
			cl.SendError("invalid_payload", "invalid payload", map[string]string{"action": "reset"})
			return
		}
		if strings.TrimSpace(body.Scope) == "" {
			session.ResetAllSelection()
			return
		}
		scope, err := selection.ParseScope(body.Scope)
		if err != nil {
			cl.SendError("invalid_command", err.Error(), map[string]string{"action": "reset"})
			return
		}
		session.ResetSelection(scope)
	})

	commands.Register("page", func(_ context.Context, cl *infrastructure.Client, cmd infrastructure.Command) {
		var body domain.PageCommand
		if err := cmd.Decode(&body); err != nil {
			cl.SendError("invalid_payload", "invalid payload", map[string]string{"action": "page"})
			return
		}
		view, err := domain.ParseView(body.View)
		if err == nil {
			err = session.SetPage(view, body.Query)
		}
		if err != nil {
			cl.SendError("invalid_command", err.Error(), map[string]string{"action": "page", "view": body.View})
		}
	})

	commands.Register("refetch", func(_ context.Context, cl *infrastructure.Client, cmd infrastructure.Command) {
		var body domain.RefetchCommand
		if err := cmd.Decode(&body); err != nil {
			cl.SendError("invalid_payload", "invalid payload", map[string]string{"action": "refetch"})
			return
		}
		if strings.TrimSpace(body.View) == "" {
			for _, view := range domain.Views() {
				_ = session.Refetch(view)
			}
			return
		}
		view, err := domain.ParseView(body.View)
		if err == nil {
			err = session.Refetch(view)
		}
		if err != nil {
			cl.SendError("invalid_command", err.Error(), map[string]string{"action": "refetch", "view": body.View})
		}
	})

	commands.Register("dialog", func(_ context.Context, cl *infrastructure.Client, cmd infrastructure.Command) {
		var body domain.DialogCommand
		if err := cmd.Decode(&body); err != nil {
			cl.SendError("invalid_payload", "invalid payload", map[string]string{"action": "dialog"})
			return
		}
		if strings.TrimSpace(body.Mode) == "" {
			session.CloseDialog()
			return
		}
		session.OpenDialog(strings.TrimSpace(body.Mode), body.Entity)
	})

	commands.Register("state", func(_ context.Context, cl *infrastructure.Client, _ infrastructure.Command) {
		if session.Closed() {
			cl.SendError("session_closed", usecase.ErrSessionClosed.Error(), nil)
			return
		}
		sendSessionState(cl, session)
	})
}
