package core

import "errors"

// Error kinds surfaced to clients as the error string of a failed request.
// Engine-internal failures never leak their own shapes; the room boundary
// maps them to ErrEngineUnavailable (or ErrTransportCreation for the
// transport-creation path) and logs the original.
var (
	ErrChannelNotFound     = errors.New("channel not found")
	ErrNotAVoiceChannel    = errors.New("not a voice channel")
	ErrNotAMember          = errors.New("not a member of this server")
	ErrNotInVoiceChannel   = errors.New("not in voice channel")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrTransportNotFound   = errors.New("transport not found")
	ErrProducerNotFound    = errors.New("producer not found")
	ErrAlreadyProducing    = errors.New("already producing")
	ErrCapabilitiesNotSet  = errors.New("rtp capabilities not set")
	ErrIncompatible        = errors.New("incompatible rtp capabilities")
	ErrNotSendTransport    = errors.New("transport is not a send transport")
	ErrNotRecvTransport    = errors.New("transport is not a recv transport")
	ErrTransportCreation   = errors.New("failed to create transport")
	ErrEngineUnavailable   = errors.New("media engine unavailable")

	// ErrRoomClosed is returned by Join when the room lost the race against
	// its own removal; callers re-fetch the room from the registry.
	ErrRoomClosed = errors.New("room closed")
)
