package app

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/dkeye/atrium/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRelayPreservesSenderOrder(t *testing.T) {
	reg := NewRegistry()
	relay := NewRelay(reg, prometheus.NewRegistry())

	register(reg, "a")
	_, bConn := register(reg, "b")

	const n = 10
	for i := 0; i < n; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"candidate":"cand-%d"}`, i))
		relay.Relay("a", protocol.TypeSignalCandidate, "b", payload)
	}

	frames := bConn.all()
	if len(frames) != n {
		t.Fatalf("deliveries: want %d, got %d", n, len(frames))
	}
	for i, f := range frames {
		var sig protocol.Signal
		if err := json.Unmarshal(f, &sig); err != nil {
			t.Fatal(err)
		}
		if sig.Type != protocol.TypeSignalCandidate {
			t.Fatalf("frame %d type: %s", i, sig.Type)
		}
		if sig.SenderConnectionID != "a" {
			t.Fatalf("frame %d sender: %s", i, sig.SenderConnectionID)
		}
		if sig.TargetConnectionID != "" {
			t.Fatal("target must be consumed, not forwarded")
		}
		want := fmt.Sprintf(`{"candidate":"cand-%d"}`, i)
		if string(sig.Payload) != want {
			t.Fatalf("frame %d payload: want %s, got %s", i, want, sig.Payload)
		}
	}
}

func TestRelayToGoneTargetIsSilent(t *testing.T) {
	reg := NewRegistry()
	relay := NewRelay(reg, prometheus.NewRegistry())

	_, aConn := register(reg, "a")

	relay.Relay("a", protocol.TypeSignalOffer, "ghost", json.RawMessage(`{"sdp":"x"}`))

	if got := len(aConn.all()); got != 0 {
		t.Fatalf("sender must not hear about the drop, got %d frames", got)
	}
}

func TestRelayPayloadVerbatim(t *testing.T) {
	reg := NewRegistry()
	relay := NewRelay(reg, prometheus.NewRegistry())

	register(reg, "a")
	_, bConn := register(reg, "b")

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 123 2 IN IP4 127.0.0.1"}`)
	relay.Relay("a", protocol.TypeSignalOffer, "b", payload)

	var sig protocol.Signal
	if err := json.Unmarshal(bConn.all()[0], &sig); err != nil {
		t.Fatal(err)
	}
	if string(sig.Payload) != string(payload) {
		t.Fatalf("payload altered: %s", sig.Payload)
	}
}

func TestRelayBackpressuredTargetDropped(t *testing.T) {
	reg := NewRegistry()
	relay := NewRelay(reg, prometheus.NewRegistry())

	register(reg, "a")
	_, bConn := register(reg, "b")
	bConn.full = true

	relay.Relay("a", protocol.TypeSignalAnswer, "b", json.RawMessage(`{}`))
	if got := len(bConn.all()); got != 0 {
		t.Fatalf("backpressured target must not receive, got %d", got)
	}
}
