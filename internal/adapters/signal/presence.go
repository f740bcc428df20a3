package signal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/auth"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

const (
	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"
)

type presenceEvent struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username,omitempty"`
}

type typingEvent struct {
	ChannelID domain.ChannelID `json:"channelId"`
	UserID    domain.UserID    `json:"userId"`
}

// presenceHub tracks which users hold a live signaling connection and fans
// presence changes out to everyone else. A user has at most one connection;
// a second one replaces the first.
type presenceHub struct {
	mu    sync.RWMutex
	conns map[domain.UserID]*wsConn
}

func newPresenceHub() *presenceHub {
	return &presenceHub{conns: make(map[domain.UserID]*wsConn)}
}

func (h *presenceHub) online(id auth.Identity, conn *wsConn) {
	h.mu.Lock()
	prev, had := h.conns[id.UserID]
	h.conns[id.UserID] = conn
	h.mu.Unlock()
	if had {
		prev.Close()
	}

	h.broadcast(id.UserID, EventUserOnline, presenceEvent{UserID: id.UserID, Username: id.Username})
	log.Info().Str("module", "signal.presence").Str("user", string(id.UserID)).Msg("online")
}

// offline drops the user's presence entry, but only if the hub still maps
// the user to this connection. A replaced connection's teardown reports
// false so it cannot revoke the presence, or the voice state, the user
// re-established over the new socket.
func (h *presenceHub) offline(userID domain.UserID, conn *wsConn) bool {
	h.mu.Lock()
	current, had := h.conns[userID]
	if !had || current != conn {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, userID)
	h.mu.Unlock()

	h.broadcast(userID, EventUserOffline, presenceEvent{UserID: userID})
	log.Info().Str("module", "signal.presence").Str("user", string(userID)).Msg("offline")
	return true
}

func (h *presenceHub) broadcast(from domain.UserID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID, conn := range h.conns {
		if userID == from {
			continue
		}
		_ = conn.SendEvent(event, payload)
	}
}

func (h *presenceHub) sendTo(userID domain.UserID, event string, payload any) {
	h.mu.RLock()
	conn, ok := h.conns[userID]
	h.mu.RUnlock()
	if ok {
		_ = conn.SendEvent(event, payload)
	}
}

// handleTyping relays typing indicators to the other participants of the
// channel's voice room. Fire-and-forget; no response frame.
func (g *Gateway) handleTyping(ctx context.Context, id auth.Identity, event string, data []byte) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if _, err := g.validateVoiceChannel(ctx, id.UserID, p.ChannelID); err != nil {
		return
	}
	room, ok := g.registry.Get(p.ChannelID)
	if !ok {
		return
	}
	for _, info := range room.Participants() {
		if info.UserID == id.UserID {
			continue
		}
		g.presence.sendTo(info.UserID, event, typingEvent{ChannelID: p.ChannelID, UserID: id.UserID})
	}
}
