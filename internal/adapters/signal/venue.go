package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/domain"
	"github.com/dkeye/atrium/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) handleJoin(sid core.ConnID, conn *wsSignalConn, data []byte) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.VenueID == "" {
		ctl.sendError(conn, "empty venue id")
		return
	}

	role, snap, err := ctl.Coordinator.Join(sid, domain.VenueID(p.VenueID), p.DisplayName, p.WantsBroadcaster, p.Category)
	switch {
	case errors.Is(err, domain.ErrVenueFull):
		// The one rejection the user must see immediately.
		ctl.sendError(conn, "venue_full")
		return
	case errors.Is(err, domain.ErrDisplayNameEmpty), errors.Is(err, domain.ErrDisplayNameTooLong):
		ctl.sendError(conn, "invalid_name")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		ctl.sendError(conn, "join_failed")
		return
	}

	ctl.sendJSON(conn, snapshotMessage(p.VenueID, role, snap))
}

func (ctl *Controller) handleLeave(sid core.ConnID, conn *wsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Coordinator.Leave(sid)
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypeLeft})
}

func (ctl *Controller) handleChat(sid core.ConnID, conn *wsSignalConn, data []byte) {
	var p protocol.ChatSend
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.Body == "" {
		return
	}
	if !ctl.chatLimiter.Allow(sid) {
		ctl.sendError(conn, "rate_limited")
		return
	}
	msg, ok := ctl.Coordinator.Chat(sid, p.Body)
	if !ok {
		ctl.sendError(conn, "not in a venue")
		return
	}
	// Echo so the sender's view matches the buffer.
	ctl.sendJSON(conn, protocol.Chat{Type: protocol.TypeChat, Message: protocol.ChatMessage(msg)})
}

func (ctl *Controller) sendError(conn *wsSignalConn, msg string) {
	ctl.sendJSON(conn, protocol.Error{Type: protocol.TypeError, Error: msg})
}

func snapshotMessage(venueID string, role domain.Role, snap core.Snapshot) protocol.Snapshot {
	out := protocol.Snapshot{
		Type:           protocol.TypeSnapshot,
		VenueID:        venueID,
		Role:           string(role),
		Participants:   make([]protocol.Member, 0, len(snap.Participants)),
		RecentMessages: make([]protocol.ChatMessage, 0, len(snap.RecentMessages)),
	}
	if snap.Broadcaster != nil {
		out.Broadcaster = &protocol.Member{
			ConnectionID: string(snap.Broadcaster.ID),
			DisplayName:  snap.Broadcaster.DisplayName,
			Role:         string(snap.Broadcaster.Role),
		}
	}
	for _, p := range snap.Participants {
		out.Participants = append(out.Participants, protocol.Member{
			ConnectionID: string(p.ID),
			DisplayName:  p.DisplayName,
			Role:         string(p.Role),
		})
	}
	for _, m := range snap.RecentMessages {
		out.RecentMessages = append(out.RecentMessages, protocol.ChatMessage(m))
	}
	return out
}
