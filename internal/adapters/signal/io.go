package signal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/auth"
)

const writeWait = 5 * time.Second

func (g *Gateway) writePump(c *wsConn) {
	ticker := time.NewTicker(g.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump owns the connection lifetime. When it returns, for whatever
// reason the socket died, the deferred cleanup releases every voice
// resource the user still holds. This is the only guaranteed reclamation
// path for clients that vanish without a clean leave.
func (g *Gateway) readPump(id auth.Identity, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(id.UserID)).Msg("readPump closing")
		c.Close()
		// Sweep only when this is still the user's live connection; a
		// reconnect replaces the mapping first, and the old socket's
		// teardown must not reap state owned by the new one.
		if g.presence.offline(id.UserID, c) {
			g.sweep(id.UserID)
		}
	}()

	pongWait := g.cfg.PingPeriod + writeWait
	c.conn.SetReadLimit(g.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("user", string(id.UserID)).Msg("readPump read error")
			}
			return
		}
		g.handleRequest(id, c, data)
	}
}
