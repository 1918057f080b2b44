package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"votingledger/contexts/governance/voting-ledger/adapters/memory"
	"votingledger/contexts/governance/voting-ledger/application/commands"
	"votingledger/contexts/governance/voting-ledger/application/workers"
	"votingledger/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
)

type stubPublisher struct {
	failAfter int
	published []ports.EventEnvelope
}

func (p *stubPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.failAfter >= 0 && len(p.published) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	if topic != event.EventType {
		return errors.New("topic does not match event type")
	}
	p.published = append(p.published, event)
	return nil
}

type stubSubscriber struct {
	handlers map[string]func(context.Context, ports.EventEnvelope) error
	groups   map[string]string
}

func (s *stubSubscriber) Subscribe(
	_ context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	if s.handlers == nil {
		s.handlers = map[string]func(context.Context, ports.EventEnvelope) error{}
		s.groups = map[string]string{}
	}
	s.handlers[topic] = handler
	s.groups[topic] = consumerGroup
	return nil
}

var testOwner = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	store.SetNow(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	if _, err := store.InitRegistry(context.Background(), testOwner, store.Now()); err != nil {
		t.Fatalf("init registry failed: %v", err)
	}
	rounds := commands.RoundUseCase{
		Ledger:        store,
		Clock:         store,
		IDGen:         store,
		EntryFee:      commands.DefaultEntryFee(),
		CommissionBps: commands.DefaultCommissionBps,
	}
	round, err := rounds.CreateRound(context.Background(), commands.CreateRoundCommand{Caller: testOwner, Name: "Elections"})
	if err != nil {
		t.Fatalf("create round failed: %v", err)
	}
	for i := int64(1); i <= 2; i++ {
		if _, err := rounds.CastVote(context.Background(), commands.CastVoteCommand{
			RoundID:   round.RoundID,
			Voter:     common.BigToAddress(big.NewInt(100 + i)),
			Candidate: testOwner,
			Payment:   commands.DefaultEntryFee(),
		}); err != nil {
			t.Fatalf("cast vote failed: %v", err)
		}
	}
	return store
}

func TestOutboxRelayPublishesInOrderAndMarksRows(t *testing.T) {
	store := seededStore(t)
	publisher := &stubPublisher{failAfter: -1}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store, BatchSize: 10}

	count, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("relay run failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 published rows, got %d", count)
	}
	types := make([]string, 0, len(publisher.published))
	for _, event := range publisher.published {
		types = append(types, event.EventType)
	}
	want := []string{commands.EventRoundCreated, commands.EventVoteCast, commands.EventVoteCast}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Fatalf("unexpected publish order (-want +got):\n%s", diff)
	}
	if publisher.published[0].SourceService != "voting-ledger" || publisher.published[0].PartitionKey != "0" {
		t.Fatalf("unexpected envelope metadata: %+v", publisher.published[0])
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending rows, got %d", len(pending))
	}
}

func TestOutboxRelayStopsAtFirstPublishFailure(t *testing.T) {
	store := seededStore(t)
	publisher := &stubPublisher{failAfter: 1}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	count, err := relay.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected publish failure")
	}
	if count != 1 {
		t.Fatalf("expected 1 row published before failure, got %d", count)
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 2 || pending[0].EventType != commands.EventVoteCast {
		t.Fatalf("expected the two vote rows to remain pending, got %+v", pending)
	}

	publisher.failAfter = -1
	count, err = relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("retry run failed: %v", err)
	}
	if count != 2 || len(publisher.published) != 3 {
		t.Fatalf("expected retry to publish the remaining 2 rows, got count=%d total=%d", count, len(publisher.published))
	}
}

func TestLedgerEventConsumerSubscribesAndSkipsDuplicates(t *testing.T) {
	sub := &stubSubscriber{}
	consumer := &workers.LedgerEventConsumer{Subscriber: sub}

	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start consumer failed: %v", err)
	}
	for _, topic := range workers.LedgerTopics {
		if sub.handlers[topic] == nil {
			t.Fatalf("expected handler registration for %s", topic)
		}
		if sub.groups[topic] != "voting-ledger-audit-cg" {
			t.Fatalf("expected default consumer group, got %q", sub.groups[topic])
		}
	}

	payload, _ := json.Marshal(map[string]any{"round_id": 0})
	event := ports.EventEnvelope{EventID: "event-1", EventType: commands.EventRoundSettled, Data: payload}
	handler := sub.handlers[commands.EventRoundSettled]
	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
}

func TestLedgerEventConsumerRejectsMalformedData(t *testing.T) {
	consumer := &workers.LedgerEventConsumer{Subscriber: &stubSubscriber{}}
	event := ports.EventEnvelope{EventID: "event-bad", EventType: commands.EventVoteCast, Data: []byte("{not json")}

	if err := consumer.Handle(context.Background(), event); err == nil {
		t.Fatalf("expected decode error")
	}
	// A failed delivery is not remembered, so the retry is decoded again.
	if err := consumer.Handle(context.Background(), event); err == nil {
		t.Fatalf("expected decode error on retry")
	}
}
