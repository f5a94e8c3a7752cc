package signal

import "github.com/dkeye/atrium/internal/protocol"

func (ctl *Controller) handlePing(conn *wsSignalConn) {
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypePong})
}
