package domain

import (
	"strings"

	"bizdash/internal/modules/query"
	"bizdash/internal/shared/normalization"
)

// relatedEntities lists the other resources whose cached lists embed data from an
// entity. A payment changes the sale's paid amount; a message changes the
// conversation's last message.
var relatedEntities = map[string][]string{
	"payments":    {"sales"},
	"messages":    {"conversations"},
	"attachments": {"sales"},
}

// InvalidationPrefixes returns the cache key prefixes affected by a change to entity.
func InvalidationPrefixes(entity string) []query.Key {
	canonical := normalization.NormalizeEntity(entity)
	if canonical == "" {
		return nil
	}
	prefixes := []query.Key{query.NewKey(canonical)}
	for _, related := range relatedEntities[canonical] {
		prefixes = append(prefixes, query.NewKey(related))
	}
	return prefixes
}

// ChangeEvent is an upstream notification that a resource was written.
type ChangeEvent struct {
	Entity     string
	Action     string
	ResourceID string
	Metadata   map[string]string
}

// ChangeFromMessage reads a change event out of a feed message.
func ChangeFromMessage(msg *Message) ChangeEvent {
	if msg == nil {
		return ChangeEvent{}
	}
	return ChangeEvent{
		Entity:     normalization.NormalizeEntity(msg.Entity),
		Action:     strings.ToLower(strings.TrimSpace(msg.Action)),
		ResourceID: strings.TrimSpace(msg.ResourceID),
		Metadata:   msg.Metadata,
	}
}

// Prefixes returns the key prefixes the event invalidates.
func (e ChangeEvent) Prefixes() []query.Key {
	return InvalidationPrefixes(e.Entity)
}
