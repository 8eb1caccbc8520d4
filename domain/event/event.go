// Package event provides the audit events recorded for every request transition.
package event

import (
	"encoding/json"
	"time"
)

// Event is one entry in a request's append-only stream.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// RequestID names the stream the event belongs to.
	RequestID string `json:"request_id"`

	// Type classifies the event.
	Type Type `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Payload contains the event-specific data.
	Payload json.RawMessage `json:"payload"`

	// Sequence orders the event within its stream, starting at 1.
	Sequence uint64 `json:"sequence"`

	// Version is the payload schema version.
	Version int `json:"version,omitempty"`
}

// NewEvent creates an event with the given type and payload.
func NewEvent(requestID string, eventType Type, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		RequestID: requestID,
		Type:      eventType,
		Timestamp: at,
		Payload:   data,
		Version:   1,
	}, nil
}

// UnmarshalPayload decodes the event payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Validate checks the fields every backend requires.
func (e *Event) Validate() error {
	if e.RequestID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	return nil
}
