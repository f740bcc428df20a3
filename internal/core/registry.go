package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

type RoomInfo struct {
	ChannelID   domain.ChannelID `json:"channelId"`
	MemberCount int              `json:"memberCount"`
}

// Registry is the process-wide directory of active voice rooms keyed by
// channel id. Rooms are created on first join and destroyed on last leave;
// destroying a room also releases its engine router through the closer.
//
// Lock ordering: registry lock strictly before any room lock.
type Registry struct {
	closer RouterCloser

	mu    sync.RWMutex
	rooms map[domain.ChannelID]*Room
}

func NewRegistry(closer RouterCloser) *Registry {
	return &Registry{
		closer: closer,
		rooms:  make(map[domain.ChannelID]*Room),
	}
}

// GetOrCreate returns the room for the channel, creating it on first
// reference. Two simultaneous first-joiners get the same room. The router
// is resolved through provide under the registry lock, serialized against
// RemoveIfEmpty, so a new room can never capture a router handle that a
// concurrent removal already released.
func (g *Registry) GetOrCreate(ctx context.Context, channelID domain.ChannelID, provide func(context.Context) (Router, error)) (*Room, error) {
	g.mu.RLock()
	room, ok := g.rooms[channelID]
	g.mu.RUnlock()
	if ok {
		return room, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok = g.rooms[channelID]; ok {
		return room, nil
	}
	router, err := provide(ctx)
	if err != nil {
		return nil, err
	}
	room = NewRoom(channelID, router)
	g.rooms[channelID] = room
	log.Info().Str("module", "core.registry").Str("channel", string(channelID)).Msg("room created")
	return room, nil
}

func (g *Registry) Get(channelID domain.ChannelID) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[channelID]
	return room, ok
}

// RemoveIfEmpty destroys the room once its participant set is empty and
// releases the channel's router. Must be called after every participant
// removal. Reports whether the room was removed.
//
// The closer call stays under the registry lock so a concurrent
// GetOrCreate cannot resolve the released router; the closer detaches it
// synchronously and must not block on the engine.
func (g *Registry) RemoveIfEmpty(channelID domain.ChannelID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[channelID]
	if !ok || !room.tryClose() {
		return false
	}
	delete(g.rooms, channelID)
	g.closer.CloseRouter(channelID)
	log.Info().Str("module", "core.registry").Str("channel", string(channelID)).Msg("room removed (empty)")
	return true
}

// RoomsWith returns every room the user currently occupies; the disconnect
// sweep leaves each of them.
func (g *Registry) RoomsWith(userID domain.UserID) []*Room {
	g.mu.RLock()
	snapshot := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		snapshot = append(snapshot, room)
	}
	g.mu.RUnlock()

	out := make([]*Room, 0, 1)
	for _, room := range snapshot {
		if room.Has(userID) {
			out = append(out, room)
		}
	}
	return out
}

func (g *Registry) List() []RoomInfo {
	g.mu.RLock()
	snapshot := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		snapshot = append(snapshot, room)
	}
	g.mu.RUnlock()

	out := make([]RoomInfo, 0, len(snapshot))
	for _, room := range snapshot {
		out = append(out, RoomInfo{ChannelID: room.ChannelID(), MemberCount: room.MemberCount()})
	}
	return out
}

// CloseAll force-closes every room and its router; shutdown path only.
func (g *Registry) CloseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for channelID, room := range g.rooms {
		room.shutdown()
		g.closer.CloseRouter(channelID)
		delete(g.rooms, channelID)
	}
	log.Info().Str("module", "core.registry").Msg("all rooms closed")
}
