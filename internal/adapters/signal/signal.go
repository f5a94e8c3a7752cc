package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/atrium/internal/app"
	"github.com/dkeye/atrium/internal/config"
	"github.com/dkeye/atrium/internal/core"
	"github.com/dkeye/atrium/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the websocket endpoint: one fresh connection id per
// upgrade, a read pump feeding the coordinator and relay, a write pump
// draining the per-connection send channel.
type Controller struct {
	Coordinator *app.Coordinator
	Relay       *app.Relay
	Registry    *app.Registry
	Cfg         *config.Config

	chatLimiter *chatRateLimiter
}

func NewController(coord *app.Coordinator, relay *app.Relay, reg *app.Registry, cfg *config.Config) *Controller {
	var limit int
	var window time.Duration
	if cfg != nil {
		limit = cfg.Venue.ChatRateLimit
		window = cfg.Venue.ChatRateWindow
	}
	return &Controller{
		Coordinator: coord,
		Relay:       relay,
		Registry:    reg,
		Cfg:         cfg,
		chatLimiter: newChatRateLimiter(limit, window),
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and binds a brand-new connection id to
// it. Reconnects never resume: a new socket is a new identity. The cookie
// client token is only logged for correlation.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sid := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).
		Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	if ctl.Cfg != nil && ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	sess := core.NewOccupantSession(sid, "guest", conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Registry.Register(sid, sess, cancel)

	// The client needs its own id before it can elect initiators.
	ctl.sendJSON(conn, protocol.Welcome{Type: protocol.TypeWelcome, ConnectionID: string(sid)})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn, cancel)
}
