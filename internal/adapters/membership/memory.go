// Package membership provides the in-process stand-in for the platform's
// channel/member store. The CRUD backend syncs channels and memberships in
// through the admin API; the voice core only reads.
package membership

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/core"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

// Memory implements core.Directory with threadsafe in-memory maps.
type Memory struct {
	mu       sync.RWMutex
	channels map[domain.ChannelID]domain.Channel
	members  map[domain.ServerID]map[domain.UserID]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		channels: make(map[domain.ChannelID]domain.Channel),
		members:  make(map[domain.ServerID]map[domain.UserID]struct{}),
	}
}

func (m *Memory) Channel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[id]
	if !ok {
		return nil, core.ErrChannelNotFound
	}
	return &ch, nil
}

func (m *Memory) IsMember(ctx context.Context, serverID domain.ServerID, userID domain.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users, ok := m.members[serverID]
	if !ok {
		return false, nil
	}
	_, ok = users[userID]
	return ok, nil
}

func (m *Memory) AddChannel(ch domain.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = ch
	log.Info().Str("module", "membership").Str("channel", string(ch.ID)).
		Str("type", string(ch.Type)).Msg("channel registered")
}

func (m *Memory) AddMember(serverID domain.ServerID, userID domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.members[serverID]
	if !ok {
		users = make(map[domain.UserID]struct{})
		m.members[serverID] = users
	}
	users[userID] = struct{}{}
}

func (m *Memory) RemoveMember(serverID domain.ServerID, userID domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if users, ok := m.members[serverID]; ok {
		delete(users, userID)
	}
}
