package signal

import (
	"encoding/json"

	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards signal-offer / signal-answer / signal-candidate to the
// named target. The payload is never inspected here or anywhere server-side.
func (ctl *Controller) handleRelay(sid core.ConnID, signalType string, data []byte) {
	var p protocol.Signal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("signal", signalType).Msg("bad signal payload")
		return
	}
	if p.TargetConnectionID == "" {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("signal", signalType).Msg("signal without target")
		return
	}
	ctl.Relay.Relay(sid, signalType, core.ConnID(p.TargetConnectionID), p.Payload)
}
