package v1

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Envelope wraps every event the voting ledger publishes. Field names are
// part of the wire contract; add fields, never rename them.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

var errIncompleteEnvelope = errors.New("event envelope is missing event_id or event_type")

// Decode parses a serialized envelope and rejects rows without identity.
func Decode(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, err
	}
	if strings.TrimSpace(envelope.EventID) == "" || strings.TrimSpace(envelope.EventType) == "" {
		return Envelope{}, errIncompleteEnvelope
	}
	return envelope, nil
}
