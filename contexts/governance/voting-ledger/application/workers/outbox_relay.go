package workers

import (
	"context"
	"log/slog"
	"time"

	application "votingledger/contexts/governance/voting-ledger/application"
	"votingledger/contexts/governance/voting-ledger/ports"
	contractsv1 "votingledger/contracts/gen/events/v1"
)

// OutboxRelay publishes persisted ledger events to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes up to BatchSize pending rows in creation order. A row is
// marked published only after the publisher accepts it, and the cycle stops
// at the first failure so the next cycle retries from that row.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("ledger outbox list failed", application.LogAttrs(
			"voting_ledger_outbox_list_failed", "worker",
			"error", err.Error(),
		)...)
		return 0, err
	}
	if len(pending) == 0 {
		logger.Debug("ledger outbox relay found no pending rows", application.LogAttrs(
			"voting_ledger_outbox_relay_noop", "worker",
			"batch_size", limit,
		)...)
		return 0, nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	published := 0
	for _, row := range pending {
		event, err := contractsv1.Decode(row.Payload)
		if err != nil {
			logger.Error("ledger outbox decode failed", application.LogAttrs(
				"voting_ledger_outbox_decode_failed", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)...)
			return published, err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("ledger outbox publish failed", application.LogAttrs(
				"voting_ledger_outbox_publish_failed", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)...)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("ledger outbox mark published failed", application.LogAttrs(
				"voting_ledger_outbox_mark_published_failed", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)...)
			return published, err
		}
		published++
	}

	logger.Info("ledger outbox relay cycle completed", application.LogAttrs(
		"voting_ledger_outbox_relay_completed", "worker",
		"published_count", published,
	)...)
	return published, nil
}

// Run drives RunOnce every interval until ctx is cancelled. Cycle errors are
// logged by RunOnce and retried on the next tick.
func (r OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, _ = r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
