package app

import (
	"sync"

	"github.com/dkeye/atrium/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Aggregator keeps per-category headcounts for presence widgets. Venues push
// deltas on every structural change, so Aggregate is a cheap map copy:
// snapshot-consistent per venue, eventually consistent across venues.
type Aggregator struct {
	mu     sync.RWMutex
	counts map[domain.Category]int

	occupancy *prometheus.GaugeVec
	joins     *prometheus.CounterVec
	leaves    *prometheus.CounterVec
}

func NewAggregator(reg prometheus.Registerer) *Aggregator {
	a := &Aggregator{
		counts: make(map[domain.Category]int),
		occupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "atrium",
			Name:      "occupancy",
			Help:      "Current occupants per venue category.",
		}, []string{"category"}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atrium",
			Name:      "joins_total",
			Help:      "Venue joins per category.",
		}, []string{"category"}),
		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atrium",
			Name:      "leaves_total",
			Help:      "Venue leaves per category.",
		}, []string{"category"}),
	}
	if reg != nil {
		reg.MustRegister(a.occupancy, a.joins, a.leaves)
	}
	return a
}

// OccupancyChanged implements core.OccupancyListener. Called from inside a
// venue sequencer, so it must stay non-blocking. The gauge Set stays under
// the lock so it cannot land out of order and stick at a stale value.
func (a *Aggregator) OccupancyChanged(cat domain.Category, delta int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.counts[cat] + delta
	if n <= 0 {
		delete(a.counts, cat)
		n = 0
	} else {
		a.counts[cat] = n
	}

	a.occupancy.WithLabelValues(string(cat)).Set(float64(n))
	if delta > 0 {
		a.joins.WithLabelValues(string(cat)).Inc()
	} else if delta < 0 {
		a.leaves.WithLabelValues(string(cat)).Inc()
	}
}

// Aggregate returns a copy of the per-category headcounts.
func (a *Aggregator) Aggregate() map[domain.Category]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[domain.Category]int, len(a.counts))
	for cat, n := range a.counts {
		out[cat] = n
	}
	return out
}
