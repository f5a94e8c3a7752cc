package core

import (
	"errors"

	"github.com/dkeye/atrium/internal/domain"
)

// Frame is an encoded wire message ready to be written to a transport.
type Frame []byte

// ConnID identifies one live transport session. A reconnect is a new ConnID;
// no identity continuity is assumed across disconnects.
type ConnID string

// ErrVenueClosed is returned by Admit when the venue was emptied and removed
// between lookup and admission. Callers re-create and retry.
var ErrVenueClosed = errors.New("venue closed")

// SignalConn abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	TrySend(Frame) error
	Close()
}

// OccupantSession binds an occupant's meta to its transport endpoint.
// This is what a venue stores and fans out to.
type OccupantSession interface {
	ID() ConnID
	DisplayName() string
	SetDisplayName(string) error
	Signal() SignalConn
}

// OccupantDTO is a read-only view for APIs (no transport fields).
type OccupantDTO struct {
	ID          ConnID      `json:"connectionId"`
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
}

// Snapshot is the venue state handed to a joiner: occupants other than the
// joiner itself, plus the recent chat buffer.
type Snapshot struct {
	Broadcaster    *OccupantDTO
	Participants   []OccupantDTO
	RecentMessages []domain.ChatMessage
}

// PublishResult reports delivery stats/backpressure to the coordinator.
type PublishResult struct {
	SentTo  int
	Dropped []ConnID
}

// VenueService is the core-facing API of a venue. All mutations are
// serialized through the venue's own lock, which is the per-venue sequencer:
// admissions, evictions and their announcement fan-out never interleave.
type VenueService interface {
	Venue() *domain.Venue
	OccupantCount() int
	Snapshot() Snapshot

	// Admit places sess into the venue (broadcaster slot if wantsBroadcaster
	// and the slot is free, participant otherwise) and, still under the
	// sequencer, enqueues announce(assignedRole) to every other occupant.
	// The returned snapshot excludes the joiner.
	Admit(sess OccupantSession, wantsBroadcaster bool, announce func(role domain.Role) Frame) (domain.Role, Snapshot, PublishResult, error)

	// Evict removes id and enqueues announce(heldRole) to the remaining
	// occupants. Reports false if id was not present.
	Evict(id ConnID, announce func(role domain.Role) Frame) (domain.Role, PublishResult, bool)

	// PublishChat appends msg to the recent-message ring and fans data out to
	// every occupant except from, in one sequencer step.
	PublishChat(from ConnID, msg domain.ChatMessage, data Frame) PublishResult

	// CloseIfEmpty marks the venue closed when it has no occupants, so that a
	// racing Admit fails with ErrVenueClosed instead of landing in an orphan.
	CloseIfEmpty() bool
}

type VenueInfo struct {
	ID            domain.VenueID   `json:"id"`
	Name          domain.VenueName `json:"name"`
	Category      domain.Category  `json:"category"`
	Capacity      int              `json:"capacity"`
	OccupantCount int              `json:"occupantCount"`
}

type VenueRegistry interface {
	GetOrCreate(id domain.VenueID, d domain.VenueDefaults) VenueService
	Get(id domain.VenueID) (VenueService, bool)
	RemoveIfEmpty(id domain.VenueID)
	List() []VenueInfo
}

// OccupancyListener receives per-category headcount deltas on every
// structural venue change. Implementations must not block.
type OccupancyListener interface {
	OccupancyChanged(cat domain.Category, delta int)
}
