// Package signal carries the persistent websocket connection of every
// client: request/response voice signaling, room event fan-out and
// presence, all multiplexed over one socket per user.
package signal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/app/media"
	"github.com/gavelinrobert-beep/Hearth/internal/auth"
	"github.com/gavelinrobert-beep/Hearth/internal/config"
	"github.com/gavelinrobert-beep/Hearth/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const sendQueueSize = 32

// Gateway terminates websocket connections and dispatches their voice
// requests to the room registry. One Gateway per process.
type Gateway struct {
	cfg       *config.Config
	registry  *core.Registry
	media     *media.Facade
	directory core.Directory
	joins     *JoinLimiter
	presence  *presenceHub
}

func NewGateway(cfg *config.Config, registry *core.Registry, facade *media.Facade, directory core.Directory) *Gateway {
	return &Gateway{
		cfg:       cfg,
		registry:  registry,
		media:     facade,
		directory: directory,
		joins:     NewJoinLimiter(cfg.JoinLimit, cfg.JoinWindow),
		presence:  newPresenceHub(),
	}
}

// wsConn wraps a websocket with a buffered outbound queue. It implements
// core.SignalConnection so rooms can fan events out without knowing about
// websockets.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWsConn(ws *websocket.Conn) *wsConn {
	return &wsConn{conn: ws, send: make(chan []byte, sendQueueSize)}
}

// trySend enqueues a frame without blocking. A full queue means the client
// is not draining; the frame is dropped rather than stalling the sender.
func (c *wsConn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) SendEvent(event string, payload any) error {
	b, err := json.Marshal(Event{Type: event, Data: payload})
	if err != nil {
		return err
	}
	return c.trySend(b)
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

func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// HandleSignal authenticates the request, upgrades it and starts the
// read/write pumps. Authentication failures are rejected before the
// upgrade so no room operation is ever reachable unauthenticated.
func (g *Gateway) HandleSignal(c *gin.Context) {
	identity, err := auth.Verify([]byte(g.cfg.Secret), bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("user", string(identity.UserID)).Msg("new WS connection")

	conn := newWsConn(ws)
	g.presence.online(identity, conn)

	go g.writePump(conn)
	go g.readPump(identity, conn)
}
