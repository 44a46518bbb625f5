package core

import (
	"time"

	"github.com/google/uuid"
)

// NormalizedEvent is the canonical representation of a security event after
// upstream normalization. Producers are inconsistent about metadata key casing,
// which is why field resolution retries key variants (see detect.FieldResolver).
type NormalizedEvent struct {
	Timestamp       time.Time              `json:"timestamp"`
	EventType       string                 `json:"event_type"`
	Severity        string                 `json:"severity"`
	SourceIP        string                 `json:"source_ip"`
	SourcePort      int                    `json:"source_port"`
	DestinationIP   string                 `json:"destination_ip"`
	DestinationPort int                    `json:"destination_port"`
	Protocol        string                 `json:"protocol"`
	DeviceID        string                 `json:"device_id,omitempty"`
	SensorID        string                 `json:"sensor_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// EventEnvelope is the unit of work flowing through the correlation pipeline:
// the raw event plus its optional normalized form and enrichment side-data.
// Envelopes are immutable once constructed; the pipeline owns each envelope
// for the duration of one evaluation pass.
type EventEnvelope struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source"`
	SourceType string                 `json:"source_type"`
	ReceivedAt time.Time              `json:"received_at"`
	RawData    string                 `json:"raw_data,omitempty"`
	Normalized *NormalizedEvent       `json:"normalized,omitempty"`
	Enrichment map[string]interface{} `json:"enrichment,omitempty"`
}

// NewEventEnvelope creates an envelope with a generated UUID and receipt timestamp.
func NewEventEnvelope(source, sourceType string) *EventEnvelope {
	return &EventEnvelope{
		ID:         uuid.New().String(),
		Source:     source,
		SourceType: sourceType,
		ReceivedAt: time.Now().UTC(),
	}
}
