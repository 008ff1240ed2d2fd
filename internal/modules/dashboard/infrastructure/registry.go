package infrastructure

import (
	"context"
	"sort"
	"sync"

	"bizdash/internal/modules/dashboard/application/port"
	"bizdash/internal/modules/dashboard/domain"
)

// HandlerRegistry dispatches change-feed messages to the handler of their topic.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]port.TopicHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]port.TopicHandler)}
}

func (r *HandlerRegistry) Register(h port.TopicHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Topic()] = h
}

// Topics lists the registered feed topics.
func (r *HandlerRegistry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Dispatch hands msg to the handler registered for feedTopic. Messages on
// unknown topics are dropped.
func (r *HandlerRegistry) Dispatch(ctx context.Context, feedTopic string, msg *domain.Message) error {
	r.mu.RLock()
	handler, ok := r.handlers[feedTopic]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return handler.Handle(ctx, msg)
}
