package signal

import (
	"encoding/json"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/gavelinrobert-beep/Hearth/internal/core"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

// Wire envelopes. Every client request carries an id; the server answers
// each id with exactly one response frame, success or error. Events carry
// no id and expect no answer.

type Request struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Response struct {
	Type  string `json:"type"`
	ID    int64  `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Request payloads.

type channelPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

type joinPayload struct {
	ChannelID       domain.ChannelID           `json:"channelId"`
	RtpCapabilities *mediasoup.RtpCapabilities `json:"rtpCapabilities"`
}

type createTransportPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	Direction string           `json:"direction"`
}

type connectTransportPayload struct {
	ChannelID      domain.ChannelID          `json:"channelId"`
	TransportID    string                    `json:"transportId"`
	DtlsParameters *mediasoup.DtlsParameters `json:"dtlsParameters"`
}

type producePayload struct {
	ChannelID     domain.ChannelID         `json:"channelId"`
	TransportID   string                   `json:"transportId"`
	Kind          string                   `json:"kind"`
	RtpParameters *mediasoup.RtpParameters `json:"rtpParameters"`
}

type consumePayload struct {
	ChannelID      domain.ChannelID `json:"channelId"`
	ProducerUserID domain.UserID    `json:"producerUserId"`
	TransportID    string           `json:"transportId"`
}

type typingPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

// Response payloads.

type capabilitiesResult struct {
	RtpCapabilities *mediasoup.RtpCapabilities `json:"rtpCapabilities"`
}

type joinResult struct {
	Participants []core.ParticipantInfo `json:"participants"`
}

type successResult struct {
	Success bool `json:"success"`
}

type transportResult struct {
	TransportOptions core.TransportOptions `json:"transportOptions"`
}

type produceResult struct {
	ProducerID string `json:"producerId"`
}

type consumeResult struct {
	ConsumerOptions core.ConsumerOptions `json:"consumerOptions"`
}
