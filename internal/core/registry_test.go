package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gavelinrobert-beep/Hearth/internal/app/media"
	"github.com/gavelinrobert-beep/Hearth/internal/core"
	"github.com/gavelinrobert-beep/Hearth/internal/core/coretest"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

// recordingCloser counts router releases per channel.
type recordingCloser struct {
	mu     sync.Mutex
	closed []domain.ChannelID
}

func (c *recordingCloser) CloseRouter(channelID domain.ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, channelID)
}

func (c *recordingCloser) Closed() []domain.ChannelID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChannelID(nil), c.closed...)
}

func newTestRouter(t *testing.T) core.Router {
	t.Helper()
	engine := coretest.NewEngine()
	worker, err := engine.StartWorker(context.Background())
	require.NoError(t, err)
	router, err := worker.CreateRouter(context.Background())
	require.NoError(t, err)
	return router
}

func provide(router core.Router) func(context.Context) (core.Router, error) {
	return func(context.Context) (core.Router, error) { return router, nil }
}

func mustRoom(t *testing.T, reg *core.Registry, channelID domain.ChannelID, router core.Router) *core.Room {
	t.Helper()
	room, err := reg.GetOrCreate(context.Background(), channelID, provide(router))
	require.NoError(t, err)
	return room
}

func TestRegistryGetOrCreateIsRaceFree(t *testing.T) {
	reg := core.NewRegistry(&recordingCloser{})
	router := newTestRouter(t)

	const callers = 16
	rooms := make([]*core.Room, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = mustRoom(t, reg, "chan-voice", router)
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		require.Same(t, rooms[0], rooms[i])
	}
}

func TestRegistryRemoveIfEmpty(t *testing.T) {
	closer := &recordingCloser{}
	reg := core.NewRegistry(closer)
	room := mustRoom(t, reg, "chan-voice", newTestRouter(t))

	conn := coretest.NewSignalConn()
	_, err := room.Join("user-a", "alice", testCaps(), conn)
	require.NoError(t, err)

	// Occupied room survives.
	require.False(t, reg.RemoveIfEmpty("chan-voice"))
	require.Empty(t, closer.Closed())

	require.True(t, room.Leave("user-a"))
	require.True(t, reg.RemoveIfEmpty("chan-voice"))
	require.Equal(t, []domain.ChannelID{"chan-voice"}, closer.Closed())

	_, ok := reg.Get("chan-voice")
	require.False(t, ok)

	// A removed room refuses late joins so callers retry on a fresh one.
	_, err = room.Join("user-b", "bob", testCaps(), coretest.NewSignalConn())
	require.ErrorIs(t, err, core.ErrRoomClosed)
}

// A joiner that raced a removal must never end up in a room bound to the
// released router: the registry resolves the router under its own lock.
func TestRegistryRemovalRaceGetsFreshRouter(t *testing.T) {
	ctx := context.Background()
	engine := coretest.NewEngine()
	facade := media.NewFacade(engine, func(error) {})
	require.NoError(t, facade.Init(ctx, 1))
	reg := core.NewRegistry(facade)
	fromFacade := func(ctx context.Context) (core.Router, error) {
		return facade.GetOrCreateRouter(ctx, "chan-voice")
	}

	// Handle resolved before the removal commits.
	stale, err := facade.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)

	first, err := reg.GetOrCreate(ctx, "chan-voice", fromFacade)
	require.NoError(t, err)
	_, err = first.Join("user-a", "alice", testCaps(), coretest.NewSignalConn())
	require.NoError(t, err)
	require.True(t, first.Leave("user-a"))
	require.True(t, reg.RemoveIfEmpty("chan-voice"))

	second, err := reg.GetOrCreate(ctx, "chan-voice", fromFacade)
	require.NoError(t, err)
	require.NotSame(t, first, second)

	// The new room operates on a live router, not the released one.
	_, err = second.Join("user-b", "bob", testCaps(), coretest.NewSignalConn())
	require.NoError(t, err)
	_, err = second.CreateTransport(ctx, "user-b", core.DirectionSend)
	require.NoError(t, err)

	require.Eventually(t, stale.(*coretest.Router).Closed, time.Second, 10*time.Millisecond)
	current, err := facade.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)
	require.NotEqual(t, stale.ID(), current.ID())
}

func TestRegistryCountMatchesJoinsMinusLeaves(t *testing.T) {
	reg := core.NewRegistry(&recordingCloser{})
	room := mustRoom(t, reg, "chan-voice", newTestRouter(t))

	users := []domain.UserID{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		_, err := room.Join(u, string(u), testCaps(), coretest.NewSignalConn())
		require.NoError(t, err)
	}
	require.Equal(t, len(users), room.MemberCount())

	for i, u := range users {
		require.True(t, room.Leave(u))
		require.Equal(t, len(users)-i-1, room.MemberCount())
		removed := reg.RemoveIfEmpty("chan-voice")
		require.Equal(t, i == len(users)-1, removed)
	}
}

func TestRegistryRoomsWith(t *testing.T) {
	reg := core.NewRegistry(&recordingCloser{})
	roomA := mustRoom(t, reg, "chan-a", newTestRouter(t))
	roomB := mustRoom(t, reg, "chan-b", newTestRouter(t))
	mustRoom(t, reg, "chan-c", newTestRouter(t))

	_, err := roomA.Join("user-a", "alice", testCaps(), coretest.NewSignalConn())
	require.NoError(t, err)
	_, err = roomB.Join("user-a", "alice", testCaps(), coretest.NewSignalConn())
	require.NoError(t, err)

	rooms := reg.RoomsWith("user-a")
	require.Len(t, rooms, 2)
	channels := []domain.ChannelID{rooms[0].ChannelID(), rooms[1].ChannelID()}
	require.ElementsMatch(t, []domain.ChannelID{"chan-a", "chan-b"}, channels)
}

func TestRegistryCloseAll(t *testing.T) {
	closer := &recordingCloser{}
	reg := core.NewRegistry(closer)
	roomA := mustRoom(t, reg, "chan-a", newTestRouter(t))
	mustRoom(t, reg, "chan-b", newTestRouter(t))

	_, err := roomA.Join("user-a", "alice", testCaps(), coretest.NewSignalConn())
	require.NoError(t, err)

	reg.CloseAll()
	require.ElementsMatch(t, []domain.ChannelID{"chan-a", "chan-b"}, closer.Closed())
	require.Empty(t, reg.List())

	// Even the occupied room is gone and refuses joins.
	_, err = roomA.Join("user-b", "bob", testCaps(), coretest.NewSignalConn())
	require.ErrorIs(t, err, core.ErrRoomClosed)
}
