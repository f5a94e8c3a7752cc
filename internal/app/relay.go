package app

import (
	"encoding/json"

	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Relay is a store-less router for peer-negotiation envelopes, keyed by
// target connection id. It never interprets the payload. A vanished target
// is an expected race and is dropped without telling the sender.
//
// FIFO per sender→target pair holds because each sender's envelopes are
// relayed from its single read goroutine straight into the target's ordered
// send channel.
type Relay struct {
	Registry *Registry

	relayed prometheus.Counter
	dropped prometheus.Counter
}

func NewRelay(registry *Registry, reg prometheus.Registerer) *Relay {
	r := &Relay{
		Registry: registry,
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atrium",
			Name:      "signal_relayed_total",
			Help:      "Negotiation envelopes delivered to their target.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atrium",
			Name:      "signal_dropped_total",
			Help:      "Negotiation envelopes dropped (target gone or backpressured).",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.relayed, r.dropped)
	}
	return r
}

// Relay forwards one envelope verbatim, rewriting only the addressing: the
// target field is consumed and the sender field is stamped in.
func (r *Relay) Relay(sender core.ConnID, signalType string, target core.ConnID, payload json.RawMessage) {
	sess, ok := r.Registry.Lookup(target)
	if !ok {
		r.dropped.Inc()
		log.Debug().Str("module", "app.relay").Str("from", string(sender)).
			Str("target", string(target)).Str("signal", signalType).Msg("target gone, dropped")
		return
	}

	frame, err := json.Marshal(protocol.Signal{
		Type:               signalType,
		SenderConnectionID: string(sender),
		Payload:            payload,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode envelope")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		r.dropped.Inc()
		log.Warn().Str("module", "app.relay").Str("target", string(target)).Msg("target backpressured, dropped")
		return
	}
	r.relayed.Inc()
}
