package broker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"bizdash/internal/modules/dashboard/domain"
)

// Dispatcher routes a decoded message by the feed topic it arrived on.
type Dispatcher interface {
	Dispatch(ctx context.Context, feedTopic string, msg *domain.Message) error
}

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// RunKafkaConsumers starts one consumer per topic and blocks until ctx ends.
// Without brokers it returns immediately.
func RunKafkaConsumers(ctx context.Context, dispatcher Dispatcher, cfg ConsumerConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 {
		logger.Info("kafka consumers disabled: no brokers or topics configured")
		return nil
	}
	consumers := make([]*KafkaConsumer, 0, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		consumers = append(consumers, NewKafkaConsumer(cfg.Brokers, cfg.GroupID, topic, logger))
	}
	return runConsumers(ctx, dispatcher, consumers)
}

func runConsumers(ctx context.Context, dispatcher Dispatcher, consumers []*KafkaConsumer) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, consumer := range consumers {
		consumer := consumer
		g.Go(func() error {
			return consumer.Consume(gctx, func(msg *domain.Message) error {
				return dispatcher.Dispatch(gctx, consumer.topic, msg)
			})
		})
	}
	return g.Wait()
}
