package core

import "github.com/gavelinrobert-beep/Hearth/internal/domain"

// SignalConnection abstracts the per-client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// SendEvent enqueues a fire-and-forget event for this client. It must
	// not block; slow clients get their frames dropped, not the room stalled.
	SendEvent(event string, payload any) error
	Close()
}

// Event names broadcast to a room's participants.
const (
	EventUserJoined  = "voice-user-joined"
	EventUserLeft    = "voice-user-left"
	EventNewProducer = "voice-new-producer"
)

type UserJoinedEvent struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type UserLeftEvent struct {
	UserID domain.UserID `json:"userId"`
}

type NewProducerEvent struct {
	UserID     domain.UserID `json:"userId"`
	ProducerID string        `json:"producerId"`
}
