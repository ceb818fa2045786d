package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownEventType = errors.New("unknown_event_type")

// Envelope is the wire form of every event, regardless of publisher.
type Envelope struct {
	EventID    string            `json:"eventId"`
	EventType  EventType         `json:"eventType"`
	OccurredAt time.Time         `json:"occurredAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Payload    json.RawMessage   `json:"payload"`
}

func encodeEnvelope(eventID string, occurredAt time.Time, metadata map[string]string, payload Payload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", payload.EventType(), err)
	}
	return json.Marshal(Envelope{
		EventID:    eventID,
		EventType:  payload.EventType(),
		OccurredAt: occurredAt.UTC(),
		Metadata:   metadata,
		Payload:    body,
	})
}

// DecodeEnvelope parses raw and returns the envelope together with its typed
// payload (a pointer to one of the payload structs in this package).
func DecodeEnvelope(raw []byte) (Envelope, Payload, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, nil, err
	}
	factory, ok := payloadFactories[env.EventType]
	if !ok {
		return env, nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	payload := factory()
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return env, nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return env, payload, nil
}
