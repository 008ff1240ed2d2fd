package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"bizdash/internal/modules/dashboard/application/port"
	"bizdash/internal/modules/dashboard/application/usecase"
	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/shared/normalization"
)

// ChangeStreamHandler turns upstream change events from one feed topic into cache
// invalidations, then has every session re-read its views so live subscribers get
// fresh data. Sessions showing the entity get a "<entity>.<action>" notice
// addressed to their own sockets; the upstream payload and metadata are not
// forwarded.
type ChangeStreamHandler struct {
	topic          string
	allowedActions map[string]struct{}
	sessions       *usecase.SessionRegistry
	broadcaster    port.Broadcaster
	metrics        port.Metrics
	logger         *slog.Logger
}

func NewChangeStreamHandler(topic string, allowedActions []string, sessions *usecase.SessionRegistry) *ChangeStreamHandler {
	actionSet := make(map[string]struct{}, len(allowedActions))
	for _, a := range allowedActions {
		if v := strings.TrimSpace(strings.ToLower(a)); v != "" {
			actionSet[v] = struct{}{}
		}
	}
	deps := sessions.Deps()
	return &ChangeStreamHandler{
		topic:          strings.TrimSpace(topic),
		allowedActions: actionSet,
		sessions:       sessions,
		broadcaster:    deps.Broadcaster,
		metrics:        deps.Metrics,
		logger:         deps.Logger.With(slog.String("component", "change-stream"), slog.String("topic", topic)),
	}
}

func (h *ChangeStreamHandler) Topic() string { return h.topic }

func (h *ChangeStreamHandler) Handle(ctx context.Context, msg *domain.Message) error {
	change := domain.ChangeFromMessage(msg)
	if change.Entity == "" {
		h.logger.Debug("change-stream event without entity ignored")
		return nil
	}
	if !normalization.IsValidEntity(change.Entity) {
		h.logger.Debug("change-stream event for unknown entity ignored", slog.String("entity", change.Entity))
		return nil
	}
	if len(h.allowedActions) > 0 {
		if _, ok := h.allowedActions[change.Action]; !ok {
			return nil
		}
	}

	client := h.sessions.Client()
	prefixes := change.Prefixes()
	invalidated := 0
	for _, prefix := range prefixes {
		invalidated += client.Invalidate(prefix)
	}
	h.metrics.ChangeApplied(change.Entity, change.Action)

	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	notified := 0
	h.sessions.Each(func(s *usecase.Session) {
		if invalidated > 0 {
			s.Refresh()
		}
		if !s.Tracks(prefixes) {
			return
		}
		notified++
		h.broadcaster.Broadcast(ctx, &domain.Message{
			Topic:      domain.CustomTopic(change.Entity, change.Action),
			Entity:     change.Entity,
			Action:     change.Action,
			ResourceID: change.ResourceID,
			Metadata:   domain.SessionMetadata(s.ID(), nil),
			Timestamp:  at,
		})
	})
	h.logger.Info("change-stream invalidate",
		slog.String("entity", change.Entity),
		slog.String("action", change.Action),
		slog.String("resourceId", change.ResourceID),
		slog.Int("entries", invalidated),
		slog.Int("sessions", notified),
	)
	return nil
}

var _ port.TopicHandler = (*ChangeStreamHandler)(nil)
