package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/admission"
	"github.com/okutsev/huddle/internal/config"
	"github.com/okutsev/huddle/internal/core"
	"github.com/okutsev/huddle/internal/domain"
	"github.com/okutsev/huddle/internal/registry"
	"github.com/okutsev/huddle/internal/relay"
)

var ErrBackpressure = errors.New("backpressure")

// Controller terminates signaling websockets and translates the wire
// envelope into admission, registry and relay calls. Message handlers for
// one connection run on its readPump goroutine, so they are serialized.
type Controller struct {
	Cfg   *config.Config
	Adm   *admission.Controller
	Reg   *registry.Registry
	Relay *relay.Relay
}

func NewController(cfg *config.Config, adm *admission.Controller, reg *registry.Registry, rly *relay.Relay) *Controller {
	return &Controller{Cfg: cfg, Adm: adm, Reg: reg, Relay: rly}
}

// wsConn wraps one websocket with a bounded FIFO send queue. TrySend never
// blocks a room lock on a slow client.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
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

// Close stops accepting frames and closes the send queue. The write pump
// drains what is already queued and then closes the socket, so a final
// notification enqueued right before Close still reaches the client.
func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection's pump pair.
// Each websocket gets its own connection handle; the client-token cookie
// only provides a stable default identity.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SID(uuid.NewString())
	identity := domain.Identity(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sid, identity, conn)
	}()
}
