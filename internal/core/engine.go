package core

import (
	"context"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

// TransportDirection is fixed when the transport is created and never
// changes afterwards.
type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

func ParseDirection(s string) (TransportDirection, bool) {
	switch TransportDirection(s) {
	case DirectionSend:
		return DirectionSend, true
	case DirectionRecv:
		return DirectionRecv, true
	}
	return "", false
}

// TransportOptions are the connection parameters handed back to the client
// so it can complete ICE/DTLS against the engine.
type TransportOptions struct {
	ID             string                   `json:"id"`
	IceParameters  mediasoup.IceParameters  `json:"iceParameters"`
	IceCandidates  []mediasoup.IceCandidate `json:"iceCandidates"`
	DtlsParameters mediasoup.DtlsParameters `json:"dtlsParameters"`
}

// ConsumerOptions are handed back to a consuming client so it can attach
// the remote track.
type ConsumerOptions struct {
	ID            string                   `json:"id"`
	ProducerID    string                   `json:"producerId"`
	Kind          mediasoup.MediaKind      `json:"kind"`
	RtpParameters *mediasoup.RtpParameters `json:"rtpParameters"`
}

// Engine abstracts the media-transport collaborator. The core creates
// routers/transports/producers/consumers through it but never touches RTP
// plumbing. Owned by the adapter; a test double lives in coretest.
type Engine interface {
	StartWorker(ctx context.Context) (Worker, error)
}

// Worker is one isolated media-processing unit capable of hosting routers.
type Worker interface {
	// CreateRouter creates a router carrying the fixed audio codec set.
	CreateRouter(ctx context.Context) (Router, error)
	// OnDied registers a callback for unsolicited worker termination.
	// A close initiated through Close must not fire it.
	OnDied(func(error))
	Close() error
}

// Router scopes producers/consumers of one voice channel to a shared codec
// capability set.
type Router interface {
	ID() string
	RtpCapabilities() *mediasoup.RtpCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	// CanConsume reports whether the given receive capabilities are
	// compatible with the named producer.
	CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool
	Close() error
}

// Transport is a bidirectional ICE/DTLS conduit between one participant and
// the engine. Closing it transitively closes all producers and consumers
// created through it (engine-enforced).
type Transport interface {
	ID() string
	Options() TransportOptions
	Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error
	Produce(ctx context.Context, kind mediasoup.MediaKind, rtp *mediasoup.RtpParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps *mediasoup.RtpCapabilities) (Consumer, error)
	Close() error
}

// Producer is one participant's outbound audio track flowing into the router.
type Producer interface {
	ID() string
	Kind() mediasoup.MediaKind
	Close() error
}

// Consumer is one participant receiving another participant's producer.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() mediasoup.MediaKind
	RtpParameters() *mediasoup.RtpParameters
	Close() error
}

// RouterCloser releases the engine-side router of a channel. Implemented by
// the media facade; invoked by the registry when a room is destroyed. The
// registry may call it under its own lock: implementations must detach the
// router before returning and must not block on the engine.
type RouterCloser interface {
	CloseRouter(channelID domain.ChannelID)
}
