package app

import (
	"context"
	"sync"

	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Session core.OccupantSession
	VenueID domain.VenueID
	Role    domain.Role
	Cancel  context.CancelFunc
}

// Registry owns the connection id → session mapping. Entries live exactly as
// long as the transport session; nothing here is persisted. All operations
// are O(1) under a single lock, independent of venue contention.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]*connEntry)}
}

func (r *Registry) Register(sid core.ConnID, sess core.OccupantSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[sid] = &connEntry{Session: sess, Role: domain.RoleNone, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("connection registered")
}

func (r *Registry) Lookup(sid core.ConnID) (core.OccupantSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Bind attaches the join-time display name. A missing connection is a no-op;
// it may legitimately have vanished mid-operation.
func (r *Registry) Bind(sid core.ConnID, displayName string) error {
	sess, ok := r.Lookup(sid)
	if !ok {
		return nil
	}
	return sess.SetDisplayName(displayName)
}

func (r *Registry) VenueOf(sid core.ConnID) (domain.VenueID, domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[sid]
	if !ok || e.VenueID == "" {
		return "", domain.RoleNone, false
	}
	return e.VenueID, e.Role, true
}

func (r *Registry) SetVenue(sid core.ConnID, vid domain.VenueID, role domain.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[sid]
	if !ok {
		return false
	}
	e.VenueID = vid
	e.Role = role
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).
		Str("venue", string(vid)).Str("role", string(role)).Msg("venue bound")
	return true
}

func (r *Registry) ClearVenue(sid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[sid]; ok {
		e.VenueID = ""
		e.Role = domain.RoleNone
	}
}

// Unregister is idempotent; callers run coordinator cleanup before this so
// the entry still resolves during the implicit leave.
func (r *Registry) Unregister(sid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[sid]; !ok {
		return
	}
	delete(r.conns, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("connection unregistered")
}

// Cancel fires the connection's context cancel func, which tears the
// transport down and routes cleanup through the normal disconnect path.
func (r *Registry) Cancel(sid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("connection canceled")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
