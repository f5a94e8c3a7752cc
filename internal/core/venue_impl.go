package core

import (
	"sync"

	"github.com/dkeye/atrium/internal/domain"
	"github.com/rs/zerolog/log"
)

// venueImpl is a threadsafe in-memory venue.
// It never closes adapter-owned resources.
type venueImpl struct {
	venue *domain.Venue

	mu          sync.Mutex
	closed      bool
	broadcaster OccupantSession
	byID        map[ConnID]OccupantSession
	order       []ConnID // participant insertion order

	ring    []domain.ChatMessage
	ringCap int

	listener OccupancyListener
}

// NewVenueService builds a venue around meta. ringCap bounds the
// recent-message buffer; listener may be nil.
func NewVenueService(venue *domain.Venue, ringCap int, listener OccupancyListener) VenueService {
	return &venueImpl{
		venue:    venue,
		byID:     make(map[ConnID]OccupantSession),
		ringCap:  ringCap,
		listener: listener,
	}
}

func (v *venueImpl) Venue() *domain.Venue { return v.venue }

func (v *venueImpl) OccupantCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.countLocked()
}

func (v *venueImpl) countLocked() int {
	n := len(v.byID)
	if v.broadcaster != nil {
		n++
	}
	return n
}

func (v *venueImpl) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked(ConnID(""))
}

// snapshotLocked builds the occupant view excluding exclude (the joiner).
func (v *venueImpl) snapshotLocked(exclude ConnID) Snapshot {
	var snap Snapshot
	if v.broadcaster != nil && v.broadcaster.ID() != exclude {
		snap.Broadcaster = &OccupantDTO{
			ID:          v.broadcaster.ID(),
			DisplayName: v.broadcaster.DisplayName(),
			Role:        domain.RoleBroadcaster,
		}
	}
	snap.Participants = make([]OccupantDTO, 0, len(v.byID))
	for _, id := range v.order {
		if id == exclude {
			continue
		}
		ms := v.byID[id]
		snap.Participants = append(snap.Participants, OccupantDTO{
			ID:          ms.ID(),
			DisplayName: ms.DisplayName(),
			Role:        domain.RoleParticipant,
		})
	}
	snap.RecentMessages = make([]domain.ChatMessage, len(v.ring))
	copy(snap.RecentMessages, v.ring)
	return snap
}

func (v *venueImpl) Admit(sess OccupantSession, wantsBroadcaster bool, announce func(role domain.Role) Frame) (domain.Role, Snapshot, PublishResult, error) {
	sid := sess.ID()
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return domain.RoleNone, Snapshot{}, PublishResult{}, ErrVenueClosed
	}

	// Re-admitting the same connection is a no-op, not a fault.
	if _, ok := v.byID[sid]; ok {
		return domain.RoleParticipant, v.snapshotLocked(sid), PublishResult{}, nil
	}
	if v.broadcaster != nil && v.broadcaster.ID() == sid {
		return domain.RoleBroadcaster, v.snapshotLocked(sid), PublishResult{}, nil
	}

	// First writer wins the broadcaster slot; later hopefuls degrade to
	// participants rather than failing.
	role := domain.RoleParticipant
	if wantsBroadcaster && v.broadcaster == nil {
		role = domain.RoleBroadcaster
	}

	if v.venue.Capacity > 0 && v.countLocked() >= v.venue.Capacity {
		return domain.RoleNone, Snapshot{}, PublishResult{}, domain.ErrVenueFull
	}

	snap := v.snapshotLocked(sid)

	if role == domain.RoleBroadcaster {
		v.broadcaster = sess
	} else {
		v.byID[sid] = sess
		v.order = append(v.order, sid)
	}
	if v.listener != nil {
		v.listener.OccupancyChanged(v.venue.Category, 1)
	}

	res := v.fanoutLocked(sid, announce(role))
	log.Debug().Str("module", "core.venue").Str("venue", string(v.venue.ID)).
		Str("sid", string(sid)).Str("role", string(role)).Msg("occupant admitted")
	return role, snap, res, nil
}

func (v *venueImpl) Evict(id ConnID, announce func(role domain.Role) Frame) (domain.Role, PublishResult, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var role domain.Role
	switch {
	case v.broadcaster != nil && v.broadcaster.ID() == id:
		v.broadcaster = nil
		role = domain.RoleBroadcaster
	default:
		if _, ok := v.byID[id]; !ok {
			return domain.RoleNone, PublishResult{}, false
		}
		delete(v.byID, id)
		for i, oid := range v.order {
			if oid == id {
				v.order = append(v.order[:i], v.order[i+1:]...)
				break
			}
		}
		role = domain.RoleParticipant
	}
	if v.listener != nil {
		v.listener.OccupancyChanged(v.venue.Category, -1)
	}

	res := v.fanoutLocked(id, announce(role))
	log.Debug().Str("module", "core.venue").Str("venue", string(v.venue.ID)).
		Str("sid", string(id)).Str("role", string(role)).Msg("occupant evicted")
	return role, res, true
}

func (v *venueImpl) PublishChat(from ConnID, msg domain.ChatMessage, data Frame) PublishResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.ring = append(v.ring, msg)
	if v.ringCap > 0 && len(v.ring) > v.ringCap {
		v.ring = v.ring[len(v.ring)-v.ringCap:]
	}
	return v.fanoutLocked(from, data)
}

func (v *venueImpl) CloseIfEmpty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return true
	}
	if v.countLocked() > 0 {
		return false
	}
	v.closed = true
	return true
}

// fanoutLocked enqueues data to every occupant except skip. TrySend is a
// non-blocking channel send, so no transport I/O happens under the sequencer;
// enqueue order equals sequencer order, which gives the per-venue total order.
func (v *venueImpl) fanoutLocked(skip ConnID, data Frame) PublishResult {
	res := PublishResult{}
	deliver := func(ms OccupantSession) {
		if ms.ID() == skip {
			return
		}
		if err := ms.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, ms.ID())
			return
		}
		res.SentTo++
	}
	if v.broadcaster != nil {
		deliver(v.broadcaster)
	}
	for _, id := range v.order {
		deliver(v.byID[id])
	}
	return res
}
