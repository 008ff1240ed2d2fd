package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/shared/normalization"
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type KafkaConsumer struct {
	topic  string
	reader messageReader
	logger *slog.Logger
	now    func() time.Time
}

func NewKafkaConsumer(brokers []string, groupID, topic string, logger *slog.Logger) *KafkaConsumer {
	return newConsumer(topic, kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
	}), logger)
}

func newConsumer(topic string, reader messageReader, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{
		topic:  topic,
		reader: reader,
		logger: logger.With(slog.String("component", "kafka"), slog.String("topic", topic)),
		now:    time.Now,
	}
}

// Consume reads until ctx ends or the reader is closed. Read errors back off
// exponentially; handler errors are logged and the message is skipped.
func (c *KafkaConsumer) Consume(ctx context.Context, handler func(*domain.Message) error) error {
	defer c.reader.Close()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 200 * time.Millisecond
	retry.MaxInterval = 10 * time.Second
	retry.MaxElapsedTime = 0

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			wait := retry.NextBackOff()
			c.logger.Warn("kafka read error", slog.Any("error", err), slog.Duration("retryIn", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		msg := decodeMessage(m, c.now().UTC())
		c.logger.Debug("kafka message consumed",
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.String("entity", msg.Entity),
			slog.String("action", msg.Action),
			slog.String("resourceId", msg.ResourceID),
		)
		if err := handler(msg); err != nil {
			c.logger.Warn("kafka handler error", slog.Int64("offset", m.Offset), slog.Any("error", err))
		}
	}
}

type rawEvent struct {
	Entity     string `json:"entity"`
	Action     string `json:"action"`
	ResourceID any    `json:"resourceId"`
	Topic      string `json:"topic"`
	Metadata   any    `json:"metadata"`
	Data       any    `json:"data"`
	Timestamp  string `json:"timestamp"`
}

var feedActions = map[string]struct{}{
	domain.ActionCreated: {},
	domain.ActionUpdated: {},
	domain.ActionDeleted: {},
}

// decodeMessage turns a feed record into a message. Records that are not JSON
// objects keep their raw value as Data and take entity/action from the topic.
func decodeMessage(m kafka.Message, now time.Time) *domain.Message {
	msg := &domain.Message{Timestamp: now}

	var event rawEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		msg.Entity, msg.Action = inferEntityActionFromTopic(m.Topic)
		msg.Topic = domain.CustomTopic(msg.Entity, msg.Action)
		msg.Data = string(m.Value)
		return msg
	}

	topicEntity, topicAction := inferEntityActionFromTopic(m.Topic)
	msg.Entity = firstNonEmpty(event.Entity, topicEntity)
	msg.Action = strings.ToLower(firstNonEmpty(event.Action, topicAction))
	msg.ResourceID = normalization.AsID(event.ResourceID)
	if msg.ResourceID == "" {
		msg.ResourceID = normalization.AsID(normalization.MapFromPayload(event.Data)["id"])
	}
	msg.Metadata = normalization.AsStringMap(event.Metadata)
	msg.Data = event.Data
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(event.Timestamp)); err == nil {
		msg.Timestamp = ts.UTC()
	}

	if event.Topic != "" {
		msg.Topic = event.Topic
	} else {
		msg.Topic = domain.CustomTopic(msg.Entity, msg.Action)
	}
	return msg
}

// inferEntityActionFromTopic reads "<prefix>.<entity>" or "<entity>.<action>".
func inferEntityActionFromTopic(topic string) (string, string) {
	parts := strings.Split(strings.TrimSpace(topic), ".")
	last := strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
	if _, ok := feedActions[last]; ok && len(parts) >= 2 {
		if entity := strings.TrimSpace(parts[len(parts)-2]); entity != "" {
			return entity, last
		}
	}
	if last != "" {
		return last, "unknown"
	}
	return "", "unknown"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
