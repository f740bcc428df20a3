package core

import (
	"context"
	"sync"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

// Room owns all participants of one voice channel and the join/leave/
// produce/consume protocol between them.
//
// Every mutating operation is serialized by the room mutex, and broadcasts
// run after the state change commits under the same lock, so participants
// observe events in commit order. The lock's scope is this one room; a slow
// engine call stalls only this channel.
type Room struct {
	channelID domain.ChannelID
	router    Router

	mu           sync.Mutex
	closed       bool
	participants map[domain.UserID]*Participant
}

func NewRoom(channelID domain.ChannelID, router Router) *Room {
	return &Room{
		channelID:    channelID,
		router:       router,
		participants: make(map[domain.UserID]*Participant),
	}
}

func (r *Room) ChannelID() domain.ChannelID { return r.channelID }

func (r *Room) RtpCapabilities() *mediasoup.RtpCapabilities {
	return r.router.RtpCapabilities()
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

func (r *Room) Has(userID domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[userID]
	return ok
}

func (r *Room) Participants() []ParticipantInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterExcluding("")
}

// Join adds the user to the room and returns the roster excluding the
// caller. Re-join by a present userId is idempotent: the existing
// participant (and its original capabilities) win and no event is emitted.
func (r *Room) Join(userID domain.UserID, username string, caps *mediasoup.RtpCapabilities, signal SignalConnection) ([]ParticipantInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomClosed
	}

	if _, ok := r.participants[userID]; ok {
		return r.rosterExcluding(userID), nil
	}

	r.participants[userID] = newParticipant(userID, username, caps, signal)
	log.Info().Str("module", "core.room").Str("channel", string(r.channelID)).
		Str("user", string(userID)).Msg("participant joined")

	roster := r.rosterExcluding(userID)
	r.broadcast(userID, EventUserJoined, UserJoinedEvent{UserID: userID, Username: username})
	return roster, nil
}

// CreateTransport requests a new WebRTC transport from the router for a
// joined participant. Direction is caller-specified and immutable.
func (r *Room) CreateTransport(ctx context.Context, userID domain.UserID, dir TransportDirection) (TransportOptions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return TransportOptions{}, ErrParticipantNotFound
	}

	transport, err := r.router.CreateTransport(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("channel", string(r.channelID)).
			Str("user", string(userID)).Msg("engine transport creation")
		return TransportOptions{}, ErrTransportCreation
	}

	p.transports[transport.ID()] = &transportEntry{transport: transport, direction: dir}
	return transport.Options(), nil
}

// ConnectTransport completes the DTLS handshake on the named transport.
func (r *Room) ConnectTransport(ctx context.Context, userID domain.UserID, transportID string, dtls *mediasoup.DtlsParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return ErrParticipantNotFound
	}
	entry, ok := p.transports[transportID]
	if !ok {
		return ErrTransportNotFound
	}
	if err := entry.transport.Connect(ctx, dtls); err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("channel", string(r.channelID)).
			Str("transport", transportID).Msg("engine transport connect")
		return ErrEngineUnavailable
	}
	return nil
}

// Produce creates a producer on the caller's send transport and announces it
// to every other participant. One active audio producer per participant; a
// second produce fails with ErrAlreadyProducing and leaves the first intact.
func (r *Room) Produce(ctx context.Context, userID domain.UserID, transportID string, kind mediasoup.MediaKind, rtp *mediasoup.RtpParameters) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return "", ErrParticipantNotFound
	}
	if _, ok := p.audioProducer(); ok {
		return "", ErrAlreadyProducing
	}
	transport, err := p.transportFor(transportID, DirectionSend)
	if err != nil {
		return "", err
	}

	producer, err := transport.Produce(ctx, kind, rtp)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("channel", string(r.channelID)).
			Str("user", string(userID)).Msg("engine produce")
		return "", ErrEngineUnavailable
	}

	p.producers[producer.ID()] = producer
	log.Info().Str("module", "core.room").Str("channel", string(r.channelID)).
		Str("user", string(userID)).Str("producer", producer.ID()).Msg("producing")

	r.broadcast(userID, EventNewProducer, NewProducerEvent{UserID: userID, ProducerID: producer.ID()})
	return producer.ID(), nil
}

// Consume attaches the caller to the target participant's audio producer
// through the caller's recv transport. The consumer starts unpaused.
func (r *Room) Consume(ctx context.Context, userID, producerUserID domain.UserID, transportID string) (ConsumerOptions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return ConsumerOptions{}, ErrParticipantNotFound
	}
	if p.caps == nil {
		return ConsumerOptions{}, ErrCapabilitiesNotSet
	}
	target, ok := r.participants[producerUserID]
	if !ok {
		return ConsumerOptions{}, ErrParticipantNotFound
	}
	producer, ok := target.audioProducer()
	if !ok {
		return ConsumerOptions{}, ErrProducerNotFound
	}
	transport, err := p.transportFor(transportID, DirectionRecv)
	if err != nil {
		return ConsumerOptions{}, err
	}
	if !r.router.CanConsume(producer.ID(), p.caps) {
		return ConsumerOptions{}, ErrIncompatible
	}

	consumer, err := transport.Consume(ctx, producer.ID(), p.caps)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("channel", string(r.channelID)).
			Str("user", string(userID)).Msg("engine consume")
		return ConsumerOptions{}, ErrEngineUnavailable
	}

	p.consumers[consumer.ID()] = consumer
	return ConsumerOptions{
		ID:            consumer.ID(),
		ProducerID:    consumer.ProducerID(),
		Kind:          consumer.Kind(),
		RtpParameters: consumer.RtpParameters(),
	}, nil
}

// Leave closes every resource the participant owns, removes it and notifies
// the remaining participants. Reports whether the user was present.
func (r *Room) Leave(userID domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return false
	}
	p.closeResources()
	delete(r.participants, userID)
	log.Info().Str("module", "core.room").Str("channel", string(r.channelID)).
		Str("user", string(userID)).Msg("participant left")

	r.broadcast(userID, EventUserLeft, UserLeftEvent{UserID: userID})
	return true
}

// tryClose marks an empty room closed so late joiners fail with
// ErrRoomClosed and retry against the registry. Reports whether it closed.
func (r *Room) tryClose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.participants) > 0 {
		return false
	}
	r.closed = true
	return true
}

// shutdown force-closes the room regardless of occupancy (process shutdown).
func (r *Room) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for userID, p := range r.participants {
		p.closeResources()
		delete(r.participants, userID)
	}
}

// rosterExcluding and broadcast are called with the room lock held.
func (r *Room) rosterExcluding(userID domain.UserID) []ParticipantInfo {
	out := make([]ParticipantInfo, 0, len(r.participants))
	for id, p := range r.participants {
		if id == userID {
			continue
		}
		out = append(out, p.Info())
	}
	return out
}

func (r *Room) broadcast(from domain.UserID, event string, payload any) {
	for id, p := range r.participants {
		if id == from {
			continue
		}
		if err := p.signal.SendEvent(event, payload); err != nil {
			log.Debug().Err(err).Str("module", "core.room").Str("channel", string(r.channelID)).
				Str("to", string(id)).Str("event", event).Msg("event dropped")
		}
	}
}
