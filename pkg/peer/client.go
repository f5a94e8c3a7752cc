package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/atrium/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Client drives a Manager over the venue websocket protocol: it joins a
// venue, opens a peer session for every occupant it learns about, and routes
// relayed negotiation messages into the right session.
type Client struct {
	conn *websocket.Conn
	cfg  Config

	writeMu sync.Mutex

	mu  sync.RWMutex
	id  string
	mgr *Manager

	localTrack webrtc.TrackLocal

	// Optional hooks, set before Run.
	OnSnapshot     func(protocol.Snapshot)
	OnMemberJoined func(protocol.MemberJoined)
	OnMemberLeft   func(protocol.MemberLeft)
	OnChat         func(protocol.ChatMessage)
	OnError        func(string)
}

// Dial connects and waits for the server's welcome, which carries the
// connection id this client must use for initiator election.
func Dial(ctx context.Context, url string, cfg Config, localTrack webrtc.TrackLocal) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal server: %w", err)
	}

	c := &Client{conn: conn, cfg: cfg, localTrack: localTrack}

	var welcome protocol.Welcome
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.ConnectionID == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first message %q", welcome.Type)
	}

	c.mu.Lock()
	c.id = welcome.ConnectionID
	c.mgr = NewManager(welcome.ConnectionID, c, cfg, localTrack)
	c.mu.Unlock()

	log.Info().Str("module", "peer.client").Str("sid", welcome.ConnectionID).Msg("connected")
	return c, nil
}

// ID returns the server-assigned connection id.
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Manager exposes the peer session manager, mainly for inspection.
func (c *Client) Manager() *Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mgr
}

// SendSignal implements Signaler; negotiation messages go out through the
// same websocket the membership traffic uses.
func (c *Client) SendSignal(signalType, targetID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}
	return c.writeJSON(protocol.Signal{
		Type:               signalType,
		TargetConnectionID: targetID,
		Payload:            raw,
	})
}

func (c *Client) Join(venueID, displayName string, wantsBroadcaster bool) error {
	return c.writeJSON(protocol.Join{
		Type:             protocol.TypeJoin,
		VenueID:          venueID,
		DisplayName:      displayName,
		WantsBroadcaster: wantsBroadcaster,
	})
}

func (c *Client) Leave() error {
	c.Manager().CloseAll()
	return c.writeJSON(protocol.Envelope{Type: protocol.TypeLeave})
}

func (c *Client) Chat(body string) error {
	return c.writeJSON(protocol.ChatSend{Type: protocol.TypeChat, Body: body})
}

// Run reads server messages until the context ends or the socket closes.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()

	// Closing the socket is the only way to unblock a pending ReadMessage.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "peer.client").Msg("bad json from server")
		return
	}

	switch env.Type {
	case protocol.TypeSnapshot:
		var snap protocol.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return
		}
		if snap.Broadcaster != nil {
			c.ensure(snap.Broadcaster.ConnectionID)
		}
		for _, p := range snap.Participants {
			c.ensure(p.ConnectionID)
		}
		if c.OnSnapshot != nil {
			c.OnSnapshot(snap)
		}
	case protocol.TypeMemberJoined:
		var mj protocol.MemberJoined
		if err := json.Unmarshal(data, &mj); err != nil {
			return
		}
		c.ensure(mj.ConnectionID)
		if c.OnMemberJoined != nil {
			c.OnMemberJoined(mj)
		}
	case protocol.TypeMemberLeft:
		var ml protocol.MemberLeft
		if err := json.Unmarshal(data, &ml); err != nil {
			return
		}
		c.Manager().ClosePeer(ml.ConnectionID)
		if c.OnMemberLeft != nil {
			c.OnMemberLeft(ml)
		}
	case protocol.TypeSignalOffer, protocol.TypeSignalAnswer, protocol.TypeSignalCandidate:
		var sig protocol.Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			return
		}
		c.Manager().HandleSignal(sig.SenderConnectionID, sig.Type, sig.Payload)
	case protocol.TypeChat:
		var chat protocol.Chat
		if err := json.Unmarshal(data, &chat); err != nil {
			return
		}
		if c.OnChat != nil {
			c.OnChat(chat.Message)
		}
	case protocol.TypeError:
		var e protocol.Error
		_ = json.Unmarshal(data, &e)
		log.Warn().Str("module", "peer.client").Str("error", e.Error).Msg("server error")
		if c.OnError != nil {
			c.OnError(e.Error)
		}
	case protocol.TypeLeft, protocol.TypePong:
		// acknowledgements, nothing to do
	default:
		log.Debug().Str("module", "peer.client").Str("type", env.Type).Msg("unhandled message")
	}
}

func (c *Client) ensure(remoteID string) {
	if _, err := c.Manager().EnsureSession(remoteID); err != nil {
		log.Error().Err(err).Str("module", "peer.client").Str("remote", remoteID).Msg("open peer session")
	}
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) Close() {
	c.Manager().CloseAll()
	_ = c.conn.Close()
}
