// Package v1 holds the versioned envelope shared by every civitas event:
// governance vote.cast and vote.overridden, treasury ledger.entry_posted,
// and the member digest.generate / digest.generated pair. Contexts import
// only this contract, never each other's internals.
package v1

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope carries one civitas domain event across context boundaries. The
// wire shape must stay backward compatible; additions bump SchemaVersion.
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

// Validate rejects envelopes that cannot be routed or deduplicated. The bus
// refuses these at publish time so defects surface at the producer, not in a
// consumer's dead-letter path.
func (e Envelope) Validate() error {
	if e.EventID == "" {
		return errors.New("envelope: event_id is required")
	}
	if e.EventType == "" {
		return errors.New("envelope: event_type is required")
	}
	if e.SchemaVersion <= 0 {
		return errors.New("envelope: schema_version must be positive")
	}
	return nil
}
