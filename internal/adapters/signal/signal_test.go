package signal_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	router "github.com/dkeye/atrium/internal/adapters/http"
	"github.com/dkeye/atrium/internal/adapters/signal"
	"github.com/dkeye/atrium/internal/app"
	"github.com/dkeye/atrium/internal/config"
	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

type testEnv struct {
	server *httptest.Server
	venues core.VenueRegistry
	agg    *app.Aggregator
}

func newTestEnv(t *testing.T, capacity int) *testEnv {
	return newTestEnvMode(t, capacity, "release")
}

func newTestEnvMode(t *testing.T, capacity int, mode string) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Mode:       mode,
		ReadLimit:  32768,
		Secret:     "test-secret",
		StaticPath: t.TempDir(),
		Venue:      config.VenueConfig{DefaultCapacity: capacity, ChatBuffer: 8},
	}

	promReg := prometheus.NewRegistry()
	agg := app.NewAggregator(promReg)
	venues := core.NewVenueRegistry(cfg.Venue.ChatBuffer, agg)
	registry := app.NewRegistry()
	coordinator := &app.Coordinator{
		Registry:        registry,
		Venues:          venues,
		DefaultCapacity: cfg.Venue.DefaultCapacity,
	}
	relay := app.NewRelay(registry, promReg)
	controller := signal.NewController(coordinator, relay, registry, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	r := router.SetupRouter(ctx, cfg, router.Deps{
		Controller: controller,
		Aggregator: agg,
		Venues:     venues,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testEnv{server: srv, venues: venues, agg: agg}
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func (e *testEnv) dial(t *testing.T) *testClient {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/ws/signal"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &testClient{t: t, conn: conn}
	welcome := c.read()
	if welcome["type"] != protocol.TypeWelcome {
		t.Fatalf("first message: %v", welcome)
	}
	c.id = welcome["connectionId"].(string)
	return c
}

func (c *testClient) read() map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		c.t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func (c *testClient) write(v any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) join(venue, name string, broadcast bool) map[string]any {
	c.t.Helper()
	c.write(protocol.Join{
		Type:             protocol.TypeJoin,
		VenueID:          venue,
		DisplayName:      name,
		WantsBroadcaster: broadcast,
	})
	return c.read()
}

func TestJoinSnapshotAndDelta(t *testing.T) {
	env := newTestEnv(t, 16)

	a := env.dial(t)
	snap := a.join("lounge", "alice", true)
	if snap["type"] != protocol.TypeSnapshot || snap["role"] != "broadcaster" {
		t.Fatalf("a snapshot: %v", snap)
	}
	if snap["broadcaster"] != nil {
		t.Fatalf("first joiner must see an empty broadcaster slot: %v", snap)
	}

	b := env.dial(t)
	snap = b.join("lounge", "bob", false)
	if snap["role"] != "participant" {
		t.Fatalf("b snapshot: %v", snap)
	}
	bc, ok := snap["broadcaster"].(map[string]any)
	if !ok || bc["connectionId"] != a.id {
		t.Fatalf("b must see a as broadcaster: %v", snap)
	}

	delta := a.read()
	if delta["type"] != protocol.TypeMemberJoined || delta["connectionId"] != b.id {
		t.Fatalf("a delta: %v", delta)
	}
	if delta["role"] != "participant" || delta["displayName"] != "bob" {
		t.Fatalf("a delta fields: %v", delta)
	}
}

func TestSignalRelayKeepsOrder(t *testing.T) {
	env := newTestEnv(t, 16)

	a := env.dial(t)
	b := env.dial(t)
	a.join("lounge", "alice", false)
	b.join("lounge", "bob", false)
	a.read() // b's join delta

	const n = 5
	for i := 0; i < n; i++ {
		a.write(protocol.Signal{
			Type:               protocol.TypeSignalCandidate,
			TargetConnectionID: b.id,
			Payload:            json.RawMessage(fmt.Sprintf(`{"candidate":"cand-%d"}`, i)),
		})
	}

	for i := 0; i < n; i++ {
		msg := b.read()
		if msg["type"] != protocol.TypeSignalCandidate {
			t.Fatalf("message %d: %v", i, msg)
		}
		if msg["senderConnectionId"] != a.id {
			t.Fatalf("sender not stamped: %v", msg)
		}
		payload := msg["payload"].(map[string]any)
		if want := fmt.Sprintf("cand-%d", i); payload["candidate"] != want {
			t.Fatalf("order broken at %d: %v", i, payload)
		}
	}
}

func TestSignalToGoneTargetIsSilent(t *testing.T) {
	env := newTestEnv(t, 16)

	a := env.dial(t)
	b := env.dial(t)
	a.join("lounge", "alice", false)
	goneID := b.id
	_ = b.conn.Close()

	a.write(protocol.Signal{
		Type:               protocol.TypeSignalOffer,
		TargetConnectionID: goneID,
		Payload:            json.RawMessage(`{"sdp":"x"}`),
	})

	// The drop is invisible: the next thing a hears is its own pong.
	a.write(protocol.Envelope{Type: protocol.TypePing})
	msg := a.read()
	if msg["type"] != protocol.TypePong {
		t.Fatalf("expected pong, got %v", msg)
	}
}

func TestDisconnectBroadcastsLeaveAndRemovesVenue(t *testing.T) {
	env := newTestEnv(t, 16)

	a := env.dial(t)
	b := env.dial(t)
	a.join("lounge", "alice", true)
	b.join("lounge", "bob", false)
	a.read() // b's join delta

	aID := a.id
	_ = a.conn.Close()

	delta := b.read()
	if delta["type"] != protocol.TypeMemberLeft || delta["connectionId"] != aID {
		t.Fatalf("b delta: %v", delta)
	}

	// b remains, venue survives.
	if _, ok := env.venues.Get("lounge"); !ok {
		t.Fatal("venue must survive while b remains")
	}

	_ = b.conn.Close()
	waitFor(t, func() bool {
		_, ok := env.venues.Get("lounge")
		return !ok
	}, "venue removal after last occupant left")
}

func TestCapacityRejection(t *testing.T) {
	env := newTestEnv(t, 1)

	a := env.dial(t)
	a.join("closet", "alice", false)

	b := env.dial(t)
	msg := b.join("closet", "bob", false)
	if msg["type"] != protocol.TypeError || msg["error"] != "venue_full" {
		t.Fatalf("b must be rejected with venue_full: %v", msg)
	}
}

func TestChatEchoAndFanout(t *testing.T) {
	env := newTestEnv(t, 16)

	a := env.dial(t)
	b := env.dial(t)
	a.join("lounge", "alice", false)
	b.join("lounge", "bob", false)
	a.read() // b's join delta

	a.write(protocol.ChatSend{Type: protocol.TypeChat, Body: "hello"})

	echo := a.read()
	if echo["type"] != protocol.TypeChat {
		t.Fatalf("sender echo: %v", echo)
	}
	got := b.read()
	if got["type"] != protocol.TypeChat {
		t.Fatalf("fanout: %v", got)
	}
	body := got["message"].(map[string]any)["body"]
	if body != "hello" {
		t.Fatalf("chat body: %v", body)
	}
}

func TestPprofMountedInDebugModeOnly(t *testing.T) {
	rel := newTestEnv(t, 4)
	resp, err := http.Get(rel.server.URL + "/debug/pprof/cmdline")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("release mode must not expose pprof, got %d", resp.StatusCode)
	}

	dbg := newTestEnvMode(t, 4, "debug")
	for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline", "/debug/pprof/goroutine"} {
		resp, err := http.Get(dbg.server.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: got %d", path, resp.StatusCode)
		}
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
