package commands

import (
	"encoding/json"
	"strconv"
	"time"

	"votingledger/contexts/governance/voting-ledger/ports"
)

const (
	EventRoundCreated        = "voting_round.created"
	EventVoteCast            = "vote.cast"
	EventRoundSettled        = "voting_round.settled"
	EventCommissionWithdrawn = "treasury.commission_withdrawn"
)

func newLedgerEnvelope(
	eventID string,
	eventType string,
	partitionKeyPath string,
	partitionKey string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "voting-ledger",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     partitionKey,
		Data:             payload,
	}, nil
}

// Round events partition by round so consumers see one round's history in
// order.
func roundPartitionKey(roundID uint64) string {
	return strconv.FormatUint(roundID, 10)
}
