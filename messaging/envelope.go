// Package messaging exports monitor events as JSON envelopes on kafka.
// Export is optional; without configured brokers the monitor runs
// standalone and nothing here is active.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps one monitor event for the wire. Source is the local
// node id so multiple monitors can share a topic.
type Envelope struct {
	Event     string    `json:"event"`
	MsgID     string    `json:"msg_id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// RawEnvelope is the two-stage decode form: envelope first, payload kept
// raw for the consumer to interpret by event name.
type RawEnvelope struct {
	Event     string          `json:"event"`
	MsgID     string          `json:"msg_id"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope stamps a payload with a fresh UUID and timestamp.
func NewEnvelope(event, source string, payload any) *Envelope {
	return &Envelope{
		Event:     event,
		MsgID:     uuid.New().String(),
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(data []byte) (*RawEnvelope, error) {
	var raw RawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if raw.Event == "" {
		return nil, fmt.Errorf("envelope missing event")
	}
	return &raw, nil
}
