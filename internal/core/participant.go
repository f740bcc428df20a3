package core

import (
	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

// ParticipantInfo is a read-only view for rosters (no transport fields).
type ParticipantInfo struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type transportEntry struct {
	transport Transport
	direction TransportDirection
}

// Participant is per-user-per-room state: transports, producers, consumers
// and the negotiated receive capabilities. All fields are guarded by the
// owning room's mutex; Participant has no lock of its own.
type Participant struct {
	userID   domain.UserID
	username string
	signal   SignalConnection

	caps       *mediasoup.RtpCapabilities
	transports map[string]*transportEntry
	producers  map[string]Producer
	consumers  map[string]Consumer
}

func newParticipant(userID domain.UserID, username string, caps *mediasoup.RtpCapabilities, signal SignalConnection) *Participant {
	return &Participant{
		userID:     userID,
		username:   username,
		signal:     signal,
		caps:       caps,
		transports: make(map[string]*transportEntry),
		producers:  make(map[string]Producer),
		consumers:  make(map[string]Consumer),
	}
}

func (p *Participant) Info() ParticipantInfo {
	return ParticipantInfo{UserID: p.userID, Username: p.username}
}

// transportFor resolves one of the participant's own transports and checks
// its direction. Transports are never shared between participants.
func (p *Participant) transportFor(id string, dir TransportDirection) (Transport, error) {
	entry, ok := p.transports[id]
	if !ok {
		return nil, ErrTransportNotFound
	}
	if entry.direction != dir {
		if dir == DirectionSend {
			return nil, ErrNotSendTransport
		}
		return nil, ErrNotRecvTransport
	}
	return entry.transport, nil
}

// audioProducer returns the participant's single active audio producer.
func (p *Participant) audioProducer() (Producer, bool) {
	for _, producer := range p.producers {
		if producer.Kind() == mediasoup.MediaKindAudio {
			return producer, true
		}
	}
	return nil, false
}

// closeResources closes every transport owned by the participant. The engine
// cascades the close to all producers and consumers created through them.
func (p *Participant) closeResources() {
	for id, entry := range p.transports {
		if err := entry.transport.Close(); err != nil {
			log.Warn().Err(err).Str("module", "core.participant").
				Str("user", string(p.userID)).Str("transport", id).
				Msg("transport close")
		}
	}
	p.transports = make(map[string]*transportEntry)
	p.producers = make(map[string]Producer)
	p.consumers = make(map[string]Consumer)
}
