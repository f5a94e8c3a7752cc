package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/domain"
	"github.com/dkeye/atrium/internal/protocol"
	"github.com/rs/zerolog/log"
)

// ErrNotRegistered means the connection vanished before the operation ran.
// Callers treat it as a no-op.
var ErrNotRegistered = errors.New("connection not registered")

// Coordinator is the membership protocol: join, leave, disconnect. Each
// venue's mutations are serialized by that venue's own sequencer, so joins
// and leaves for the same venue never interleave while different venues
// proceed in parallel.
type Coordinator struct {
	Registry *Registry
	Venues   core.VenueRegistry

	// DefaultCapacity seeds lazily created venues; <= 0 means unbounded.
	DefaultCapacity int
}

// Join moves sid into venueID, creating the venue on demand. The broadcaster
// slot goes to the first writer, later hopefuls silently degrade to
// participants. Capacity rejection comes back to the caller only, never to
// the venue. A connection switching venues leaves its old venue only after
// the new admission succeeds: a rejected join changes nothing anywhere.
func (c *Coordinator) Join(sid core.ConnID, venueID domain.VenueID, displayName string, wantsBroadcaster bool, category string) (domain.Role, core.Snapshot, error) {
	sess, ok := c.Registry.Lookup(sid)
	if !ok {
		return domain.RoleNone, core.Snapshot{}, ErrNotRegistered
	}
	if err := domain.ValidateDisplayName(displayName); err != nil {
		return domain.RoleNone, core.Snapshot{}, err
	}
	prev, _, wasJoined := c.Registry.VenueOf(sid)

	defaults := domain.VenueDefaults{
		Category: domain.NormalizeCategory(category),
		Capacity: c.DefaultCapacity,
	}
	for {
		venue := c.Venues.GetOrCreate(venueID, defaults)
		role, snap, res, err := venue.Admit(sess, wantsBroadcaster, func(role domain.Role) core.Frame {
			return encode(protocol.MemberJoined{
				Type:         protocol.TypeMemberJoined,
				ConnectionID: string(sid),
				DisplayName:  displayName,
				Role:         string(role),
			})
		})
		if errors.Is(err, core.ErrVenueClosed) {
			// Lost the race against RemoveIfEmpty; recreate and retry.
			continue
		}
		if err != nil {
			return domain.RoleNone, core.Snapshot{}, err
		}
		if wasJoined && prev != venueID {
			log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
				Str("from_venue", string(prev)).Msg("implicit leave after switch")
			c.Leave(sid)
		}
		_ = sess.SetDisplayName(displayName)
		c.Registry.SetVenue(sid, venueID, role)
		c.kickDropped(res)
		log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
			Str("venue", string(venueID)).Str("role", string(role)).
			Int("notified", res.SentTo).Msg("joined venue")
		return role, snap, nil
	}
}

// Leave removes sid from its current venue and tells the remaining
// occupants. Not being in a venue, or the venue being gone, is already-left:
// a no-op, not a fault.
func (c *Coordinator) Leave(sid core.ConnID) bool {
	vid, _, ok := c.Registry.VenueOf(sid)
	if !ok {
		return false
	}
	c.Registry.ClearVenue(sid)

	venue, ok := c.Venues.Get(vid)
	if !ok {
		return false
	}

	displayName := ""
	if sess, ok := c.Registry.Lookup(sid); ok {
		displayName = sess.DisplayName()
	}
	role, res, removed := venue.Evict(sid, func(domain.Role) core.Frame {
		return encode(protocol.MemberLeft{
			Type:         protocol.TypeMemberLeft,
			ConnectionID: string(sid),
			DisplayName:  displayName,
		})
	})
	c.Venues.RemoveIfEmpty(vid)
	c.kickDropped(res)
	if removed {
		log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
			Str("venue", string(vid)).Str("role", string(role)).Msg("left venue")
	}
	return removed
}

// OnDisconnect models an ungraceful transport close as an implicit leave.
func (c *Coordinator) OnDisconnect(sid core.ConnID) {
	c.Leave(sid)
	c.Registry.Unregister(sid)
}

// Chat appends a message to the venue's recent buffer and fans it out to the
// other occupants in one sequencer step. Returns the stamped message so the
// transport can echo it to the sender.
func (c *Coordinator) Chat(sid core.ConnID, body string) (domain.ChatMessage, bool) {
	vid, _, ok := c.Registry.VenueOf(sid)
	if !ok {
		return domain.ChatMessage{}, false
	}
	venue, ok := c.Venues.Get(vid)
	if !ok {
		return domain.ChatMessage{}, false
	}
	sess, ok := c.Registry.Lookup(sid)
	if !ok {
		return domain.ChatMessage{}, false
	}

	msg := domain.NewChatMessage(string(sid), sess.DisplayName(), body)
	frame := encode(protocol.Chat{Type: protocol.TypeChat, Message: protocol.ChatMessage(msg)})
	res := venue.PublishChat(sid, msg, frame)
	c.kickDropped(res)
	return msg, true
}

// kickDropped applies the backpressure policy: an occupant whose send buffer
// is full gets its connection canceled, which funnels it through the normal
// disconnect cleanup.
func (c *Coordinator) kickDropped(res core.PublishResult) {
	for _, sid := range res.Dropped {
		log.Warn().Str("module", "app.coordinator").Str("sid", string(sid)).Msg("send buffer full, kicking")
		c.Registry.Cancel(sid)
	}
}

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode frame")
		return nil
	}
	return b
}
