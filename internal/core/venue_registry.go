package core

import (
	"sync"

	"github.com/dkeye/atrium/internal/domain"
	"github.com/rs/zerolog/log"
)

type venueRegistry struct {
	mu       sync.RWMutex
	venues   map[domain.VenueID]VenueService
	ringCap  int
	listener OccupancyListener
}

// NewVenueRegistry keeps the venue id → venue map. Venues are created lazily
// on first reference and removed the moment they become empty.
func NewVenueRegistry(ringCap int, listener OccupancyListener) VenueRegistry {
	return &venueRegistry{
		venues:   make(map[domain.VenueID]VenueService),
		ringCap:  ringCap,
		listener: listener,
	}
}

func (r *venueRegistry) GetOrCreate(id domain.VenueID, d domain.VenueDefaults) VenueService {
	r.mu.RLock()
	v, ok := r.venues[id]
	r.mu.RUnlock()
	if ok {
		return v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok = r.venues[id]; ok {
		return v
	}
	v = NewVenueService(domain.NewVenue(id, d), r.ringCap, r.listener)
	r.venues[id] = v
	log.Info().Str("module", "core.registry").Str("venue", string(id)).
		Str("category", string(v.Venue().Category)).Msg("venue created")
	return v
}

func (r *venueRegistry) Get(id domain.VenueID) (VenueService, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[id]
	return v, ok
}

func (r *venueRegistry) RemoveIfEmpty(id domain.VenueID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.venues[id]
	if !ok {
		return
	}
	if v.CloseIfEmpty() {
		delete(r.venues, id)
		log.Info().Str("module", "core.registry").Str("venue", string(id)).Msg("empty venue removed")
	}
}

func (r *venueRegistry) List() []VenueInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VenueInfo, 0, len(r.venues))
	for id, v := range r.venues {
		meta := v.Venue()
		out = append(out, VenueInfo{
			ID:            id,
			Name:          meta.Name,
			Category:      meta.Category,
			Capacity:      meta.Capacity,
			OccupantCount: v.OccupantCount(),
		})
	}
	return out
}
