package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	application "votingledger/contexts/governance/voting-ledger/application"
	"votingledger/contexts/governance/voting-ledger/application/commands"
	"votingledger/contexts/governance/voting-ledger/ports"
)

const defaultLedgerEventCG = "voting-ledger-audit-cg"

// LedgerTopics lists every topic the ledger publishes.
var LedgerTopics = []string{
	commands.EventRoundCreated,
	commands.EventVoteCast,
	commands.EventRoundSettled,
	commands.EventCommissionWithdrawn,
}

// LedgerEventConsumer follows the ledger's own topics and writes one audit
// log line per delivered event. Redeliveries of an event id are skipped.
type LedgerEventConsumer struct {
	Subscriber    ports.EventSubscriber
	ConsumerGroup string
	Logger        *slog.Logger

	seen *sync.Map
}

func (c *LedgerEventConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.seen == nil {
		c.seen = &sync.Map{}
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultLedgerEventCG
	}
	for _, topic := range LedgerTopics {
		if err := c.Subscriber.Subscribe(ctx, topic, group, c.Handle); err != nil {
			logger.Error("ledger event consumer subscribe failed", application.LogAttrs(
				"voting_ledger_consumer_subscribe_failed", "worker",
				"topic", topic,
				"consumer_group", group,
				"error", err.Error(),
			)...)
			return err
		}
	}
	logger.Info("ledger event consumer subscriptions active", application.LogAttrs(
		"voting_ledger_consumer_started", "worker",
		"consumer_group", group,
		"topics", len(LedgerTopics),
	)...)
	return nil
}

// Handle logs one event. Decode failures are returned to the bus.
func (c *LedgerEventConsumer) Handle(_ context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	if c.seen == nil {
		c.seen = &sync.Map{}
	}
	if _, duplicate := c.seen.LoadOrStore(event.EventID, struct{}{}); duplicate {
		logger.Debug("ledger event redelivered", application.LogAttrs(
			"voting_ledger_consumer_duplicate", "worker",
			"event_id", event.EventID,
			"event_type", event.EventType,
		)...)
		return nil
	}

	var data map[string]any
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			logger.Error("ledger event decode failed", application.LogAttrs(
				"voting_ledger_consumer_decode_failed", "worker",
				"event_id", event.EventID,
				"error", err.Error(),
			)...)
			c.seen.Delete(event.EventID)
			return err
		}
	}
	logger.Info("ledger event observed", application.LogAttrs(
		"voting_ledger_consumer_observed", "worker",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
		"data", data,
	)...)
	return nil
}
