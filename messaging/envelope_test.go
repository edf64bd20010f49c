package messaging

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope("node.new", "!self", map[string]string{"node_id": "!aaa"})
	if env.MsgID == "" {
		t.Fatal("envelope must carry a message id")
	}
	if env.Timestamp.IsZero() {
		t.Fatal("envelope must carry a timestamp")
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}

	raw, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Event != "node.new" || raw.Source != "!self" || raw.MsgID != env.MsgID {
		t.Errorf("decoded = %+v", raw)
	}

	var payload map[string]string
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["node_id"] != "!aaa" {
		t.Errorf("payload = %v", payload)
	}
}

func TestDecodeEnvelopeRejectsMissingEvent(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"msg_id":"x"}`)); err == nil {
		t.Error("missing event must be rejected")
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte("not json")); err == nil {
		t.Error("garbage must be rejected")
	}
}

func TestUniqueMessageIDs(t *testing.T) {
	a := NewEnvelope("link.up", "!self", nil)
	b := NewEnvelope("link.up", "!self", nil)
	if a.MsgID == b.MsgID {
		t.Error("message ids must be unique")
	}
	if time.Since(a.Timestamp) > time.Minute {
		t.Error("timestamp should be recent")
	}
}
