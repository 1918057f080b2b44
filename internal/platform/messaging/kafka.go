package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"votingledger/contexts/governance/voting-ledger/ports"
)

// SubscriberBuffer is how many undelivered events one subscription holds.
const SubscriberBuffer = 128

// ErrSubscriberBacklog is returned by Publish when a subscription's buffer is
// full. The event was not accepted by that subscription and must be retried.
var ErrSubscriberBacklog = errors.New("subscriber backlog full")

type subscription struct {
	topic string
	group string
	ch    chan ports.EventEnvelope
}

// Kafka is the event bus the outbox relay publishes ledger events to. It
// delivers in process, one queue per consumer group and topic; brokers are
// recorded for the external transport.
type Kafka struct {
	mu      sync.RWMutex
	brokers []string
	topics  map[string][]*subscription
	logger  *slog.Logger
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		brokers: append([]string(nil), brokers...),
		topics:  make(map[string][]*subscription),
		logger:  logger,
	}, nil
}

func (k *Kafka) Brokers() []string {
	return append([]string(nil), k.brokers...)
}

// Publish queues event for every consumer group on topic. It fails on the
// first group whose queue is full; groups before it keep their copy, so
// consumers must tolerate redelivery of an event id.
func (k *Kafka) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.RLock()
	subs := append([]*subscription(nil), k.topics[topic]...)
	k.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			k.logger.Warn("ledger event rejected by full subscriber queue",
				"event", "ledger_bus_publish_backlog",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", sub.group,
				"event_id", event.EventID,
			)
			return fmt.Errorf("publish %s to %s: %w", topic, sub.group, ErrSubscriberBacklog)
		}
	}

	k.logger.Debug("ledger event published",
		"event", "ledger_bus_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"subscriptions", len(subs),
	)
	return nil
}

// Subscribe runs handler for each event on topic until ctx is cancelled.
// Handler errors are logged; the in-process bus has no redelivery.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	if handler == nil {
		return errors.New("subscribe: handler is required")
	}
	sub := &subscription{
		topic: topic,
		group: consumerGroup,
		ch:    make(chan ports.EventEnvelope, SubscriberBuffer),
	}

	k.mu.Lock()
	k.topics[topic] = append(k.topics[topic], sub)
	k.mu.Unlock()

	go k.consume(ctx, sub, handler)
	return nil
}

func (k *Kafka) consume(ctx context.Context, sub *subscription, handler func(context.Context, ports.EventEnvelope) error) {
	defer k.unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.ch:
			if err := handler(ctx, event); err != nil {
				k.logger.Error("ledger event handler failed",
					"event", "ledger_bus_consume_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", sub.topic,
					"consumer_group", sub.group,
					"event_id", event.EventID,
					"error", err.Error(),
				)
			}
		}
	}
}

func (k *Kafka) unsubscribe(target *subscription) {
	k.mu.Lock()
	defer k.mu.Unlock()

	remaining := k.topics[target.topic][:0:0]
	for _, sub := range k.topics[target.topic] {
		if sub != target {
			remaining = append(remaining, sub)
		}
	}
	if len(remaining) == 0 {
		delete(k.topics, target.topic)
		return
	}
	k.topics[target.topic] = remaining
}
