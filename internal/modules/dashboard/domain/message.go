package domain

import (
	"strings"
	"time"
)

// Message is the envelope pushed to websocket clients and decoded from the change feed.
type Message struct {
	Topic      string            `json:"topic"`
	Entity     string            `json:"entity"`
	Action     string            `json:"action"`
	ResourceID string            `json:"resourceId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Data       any               `json:"data,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

const (
	SystemEntity    = "system"
	ViewEntity      = "view"
	SelectionEntity = "selection"

	TopicSystemConnected   = SystemEntity + ".connected"
	TopicSystemPong        = SystemEntity + ".pong"
	TopicSystemError       = SystemEntity + ".error"
	TopicSelectionChanged  = SelectionEntity + ".changed"
	TopicSelectionSnapshot = SelectionEntity + ".snapshot"

	ActionConnected = "connected"
	ActionPong      = "pong"
	ActionError     = "error"
	ActionChanged   = "changed"
	ActionSnapshot  = "snapshot"
	ActionState     = "state"
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
)

// ViewTopic returns the topic a view's state is pushed on, e.g. "view.sales".
func ViewTopic(view View) string {
	return CustomTopic(ViewEntity, string(view))
}

// CustomTopic joins entity and action; it is empty when either part is blank.
func CustomTopic(entity, action string) string {
	cleanEntity := strings.TrimSpace(entity)
	cleanAction := strings.TrimSpace(action)
	if cleanEntity == "" || cleanAction == "" {
		return ""
	}
	return cleanEntity + "." + cleanAction
}

// SessionMetadata targets a message at one dashboard session.
func SessionMetadata(sessionID string, extra map[string]string) map[string]string {
	metadata := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		metadata[k] = v
	}
	metadata["sessionId"] = sessionID
	return metadata
}
