package core_test

import (
	"context"
	"errors"
	"testing"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/stretchr/testify/require"

	"github.com/gavelinrobert-beep/Hearth/internal/core"
	"github.com/gavelinrobert-beep/Hearth/internal/core/coretest"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

func newTestRoom(t *testing.T) (*core.Room, *coretest.Router) {
	t.Helper()
	engine := coretest.NewEngine()
	worker, err := engine.StartWorker(context.Background())
	require.NoError(t, err)
	router, err := worker.CreateRouter(context.Background())
	require.NoError(t, err)
	return core.NewRoom("chan-voice", router), router.(*coretest.Router)
}

func testCaps() *mediasoup.RtpCapabilities {
	return &mediasoup.RtpCapabilities{
		Codecs: []*mediasoup.RtpCodecCapability{{
			Kind:      mediasoup.MediaKindAudio,
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		}},
	}
}

// joined is a participant wired into a room with a connected send and recv
// transport, ready to produce or consume.
type joined struct {
	userID domain.UserID
	conn   *coretest.SignalConn
	sendTr string
	recvTr string
}

func join(t *testing.T, room *core.Room, userID domain.UserID) *joined {
	t.Helper()
	ctx := context.Background()
	conn := coretest.NewSignalConn()
	_, err := room.Join(userID, string(userID)+"-name", testCaps(), conn)
	require.NoError(t, err)

	send, err := room.CreateTransport(ctx, userID, core.DirectionSend)
	require.NoError(t, err)
	recv, err := room.CreateTransport(ctx, userID, core.DirectionRecv)
	require.NoError(t, err)
	require.NoError(t, room.ConnectTransport(ctx, userID, send.ID, &mediasoup.DtlsParameters{}))
	require.NoError(t, room.ConnectTransport(ctx, userID, recv.ID, &mediasoup.DtlsParameters{}))

	return &joined{userID: userID, conn: conn, sendTr: send.ID, recvTr: recv.ID}
}

func TestRoomTwoUserSession(t *testing.T) {
	ctx := context.Background()
	room, _ := newTestRoom(t)

	// First joiner sees an empty roster.
	connA := coretest.NewSignalConn()
	roster, err := room.Join("user-a", "alice", testCaps(), connA)
	require.NoError(t, err)
	require.Empty(t, roster)

	// Second joiner sees the first; the first is notified.
	connB := coretest.NewSignalConn()
	roster, err = room.Join("user-b", "bob", testCaps(), connB)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, domain.UserID("user-a"), roster[0].UserID)

	joinedEvents := connA.EventsNamed(core.EventUserJoined)
	require.Len(t, joinedEvents, 1)
	require.Equal(t, core.UserJoinedEvent{UserID: "user-b", Username: "bob"}, joinedEvents[0].Payload)
	require.Empty(t, connB.EventsNamed(core.EventUserJoined))

	// A produces; B is told about the new producer.
	sendA, err := room.CreateTransport(ctx, "user-a", core.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, room.ConnectTransport(ctx, "user-a", sendA.ID, &mediasoup.DtlsParameters{}))
	producerID, err := room.Produce(ctx, "user-a", sendA.ID, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.NoError(t, err)
	require.NotEmpty(t, producerID)

	producerEvents := connB.EventsNamed(core.EventNewProducer)
	require.Len(t, producerEvents, 1)
	require.Equal(t, core.NewProducerEvent{UserID: "user-a", ProducerID: producerID}, producerEvents[0].Payload)

	// B consumes A's producer over a recv transport.
	recvB, err := room.CreateTransport(ctx, "user-b", core.DirectionRecv)
	require.NoError(t, err)
	require.NoError(t, room.ConnectTransport(ctx, "user-b", recvB.ID, &mediasoup.DtlsParameters{}))
	opts, err := room.Consume(ctx, "user-b", "user-a", recvB.ID)
	require.NoError(t, err)
	require.Equal(t, producerID, opts.ProducerID)
	require.Equal(t, mediasoup.MediaKindAudio, opts.Kind)

	// A leaves; B gets exactly one left event and the room stays up.
	require.True(t, room.Leave("user-a"))
	leftEvents := connB.EventsNamed(core.EventUserLeft)
	require.Len(t, leftEvents, 1)
	require.Equal(t, core.UserLeftEvent{UserID: "user-a"}, leftEvents[0].Payload)
	require.Equal(t, 1, room.MemberCount())
}

func TestRoomRejoinIsIdempotent(t *testing.T) {
	room, _ := newTestRoom(t)
	connA := coretest.NewSignalConn()
	connB := coretest.NewSignalConn()

	_, err := room.Join("user-a", "alice", testCaps(), connA)
	require.NoError(t, err)
	_, err = room.Join("user-b", "bob", testCaps(), connB)
	require.NoError(t, err)

	roster, err := room.Join("user-a", "alice", testCaps(), connA)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, domain.UserID("user-b"), roster[0].UserID)
	require.Equal(t, 2, room.MemberCount())

	// No duplicate joined event for the re-join.
	require.Len(t, connB.EventsNamed(core.EventUserJoined), 1)
}

func TestRoomProduceTwiceFails(t *testing.T) {
	ctx := context.Background()
	room, _ := newTestRoom(t)
	a := join(t, room, "user-a")

	first, err := room.Produce(ctx, a.userID, a.sendTr, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.NoError(t, err)

	_, err = room.Produce(ctx, a.userID, a.sendTr, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.ErrorIs(t, err, core.ErrAlreadyProducing)

	// The first producer survives and is still consumable.
	b := join(t, room, "user-b")
	opts, err := room.Consume(ctx, b.userID, a.userID, b.recvTr)
	require.NoError(t, err)
	require.Equal(t, first, opts.ProducerID)
}

func TestRoomProduceOnRecvTransportFails(t *testing.T) {
	ctx := context.Background()
	room, _ := newTestRoom(t)
	a := join(t, room, "user-a")

	_, err := room.Produce(ctx, a.userID, a.recvTr, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.ErrorIs(t, err, core.ErrNotSendTransport)
}

func TestRoomConsumeErrors(t *testing.T) {
	ctx := context.Background()
	room, _ := newTestRoom(t)

	// Capabilities never recorded.
	connA := coretest.NewSignalConn()
	_, err := room.Join("user-a", "alice", nil, connA)
	require.NoError(t, err)
	recvA, err := room.CreateTransport(ctx, "user-a", core.DirectionRecv)
	require.NoError(t, err)
	_, err = room.Consume(ctx, "user-a", "user-b", recvA.ID)
	require.ErrorIs(t, err, core.ErrCapabilitiesNotSet)

	b := join(t, room, "user-b")

	// Target not in the room.
	_, err = room.Consume(ctx, b.userID, "user-ghost", b.recvTr)
	require.ErrorIs(t, err, core.ErrParticipantNotFound)

	// Target joined but never produced.
	_, err = room.Consume(ctx, b.userID, "user-a", b.recvTr)
	require.ErrorIs(t, err, core.ErrProducerNotFound)

	// Consuming over the send transport is rejected.
	a2 := join(t, room, "user-c")
	_, err = room.Produce(ctx, a2.userID, a2.sendTr, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.NoError(t, err)
	_, err = room.Consume(ctx, b.userID, a2.userID, b.sendTr)
	require.ErrorIs(t, err, core.ErrNotRecvTransport)
}

func TestRoomConsumeIncompatibleCapabilities(t *testing.T) {
	ctx := context.Background()
	room, router := newTestRoom(t)
	a := join(t, room, "user-a")
	b := join(t, room, "user-b")

	_, err := room.Produce(ctx, a.userID, a.sendTr, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.NoError(t, err)

	router.SetConsumable(false)
	_, err = room.Consume(ctx, b.userID, a.userID, b.recvTr)
	require.ErrorIs(t, err, core.ErrIncompatible)
}

func TestRoomEngineFailuresLeaveStateClean(t *testing.T) {
	ctx := context.Background()
	room, router := newTestRoom(t)
	a := join(t, room, "user-a")

	router.FailCreateTransport = errors.New("worker channel broke")
	_, err := room.CreateTransport(ctx, a.userID, core.DirectionSend)
	require.ErrorIs(t, err, core.ErrTransportCreation)
	router.FailCreateTransport = nil

	// A failed produce is translated and leaves no producer behind.
	sendFake := router.Transport(a.sendTr)
	require.NotNil(t, sendFake)
	sendFake.FailProduce = errors.New("worker channel broke")
	_, err = room.Produce(ctx, a.userID, a.sendTr, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.ErrorIs(t, err, core.ErrEngineUnavailable)
	sendFake.FailProduce = nil

	b := join(t, room, "user-b")
	require.Empty(t, b.conn.EventsNamed(core.EventNewProducer))

	_, err = room.Produce(ctx, a.userID, a.sendTr, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.NoError(t, err)
	_, err = room.Consume(ctx, b.userID, a.userID, b.recvTr)
	require.NoError(t, err)
}

func TestRoomLeaveReleasesResources(t *testing.T) {
	ctx := context.Background()
	room, router := newTestRoom(t)
	a := join(t, room, "user-a")
	b := join(t, room, "user-b")

	producerID, err := room.Produce(ctx, a.userID, a.sendTr, mediasoup.MediaKindAudio, &mediasoup.RtpParameters{})
	require.NoError(t, err)
	_, err = room.Consume(ctx, b.userID, a.userID, b.recvTr)
	require.NoError(t, err)

	require.True(t, room.Leave(a.userID))
	require.False(t, room.Leave(a.userID))

	// A's producer is gone from the router once its transport closed.
	require.False(t, router.CanConsume(producerID, testCaps()))
	require.Len(t, b.conn.EventsNamed(core.EventUserLeft), 1)
}
