package port

import (
	"context"

	"bizdash/internal/modules/dashboard/domain"
)

// Broadcaster pushes messages to connected websocket clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg *domain.Message)
}

// TopicHandler handles messages consumed from one change-feed topic.
type TopicHandler interface {
	Topic() string
	Handle(ctx context.Context, msg *domain.Message) error
}

// Metrics receives session and change-feed events.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	ChangeApplied(entity, action string)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) SessionOpened()               {}
func (NopMetrics) SessionClosed()               {}
func (NopMetrics) ChangeApplied(string, string) {}

// NopBroadcaster drops every message.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(context.Context, *domain.Message) {}
