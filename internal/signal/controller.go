// Package signal is the WebSocket signaling adapter: one controller
// serves every client connection, runs the presence flow, relays
// pairwise WebRTC handshakes and fans out room events.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/config"
	"github.com/dway/meetup/internal/core"
	"github.com/dway/meetup/internal/domain"
	"github.com/dway/meetup/internal/rooms"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Cfg      *config.Config
	Registry *core.Registry
	Rooms    *rooms.Store
}

func NewController(cfg *config.Config, reg *core.Registry, store *rooms.Store) *Controller {
	return &Controller{Cfg: cfg, Registry: reg, Rooms: store}
}

// wsConn is the per-socket transport endpoint. Sends go through a
// buffered channel; a full buffer means backpressure, never blocking
// the sender.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
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

func (c *wsConn) Close() {
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

// HandleSignal upgrades the request and starts the connection's pumps.
// The connection id minted here is what every other participant will
// know this client by.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	connID := core.NewConnID()
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("new WS connection")

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	// Until join reveals an identity, the cookie client token stands in
	// for the user id.
	ctl.Registry.Bind(connID, domain.Identity{ID: c.GetString("client_token")}, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, connID, conn)
}
