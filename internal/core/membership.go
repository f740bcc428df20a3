package core

import (
	"context"

	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

// Directory is the membership collaborator owned by the platform's
// persistence layer. The voice core only reads through it.
type Directory interface {
	// Channel resolves a channel by id. Returns ErrChannelNotFound if absent.
	Channel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error)
	// IsMember reports whether the user belongs to the channel's parent server.
	IsMember(ctx context.Context, serverID domain.ServerID, userID domain.UserID) (bool, error)
}
