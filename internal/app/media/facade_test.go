package media_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gavelinrobert-beep/Hearth/internal/app/media"
	"github.com/gavelinrobert-beep/Hearth/internal/core/coretest"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

func TestFacadeInitStartsPool(t *testing.T) {
	engine := coretest.NewEngine()
	f := media.NewFacade(engine, func(error) {})
	require.NoError(t, f.Init(context.Background(), 3))
	require.Equal(t, 3, f.WorkerCount())
	require.Len(t, engine.Workers(), 3)

	require.Error(t, f.Init(context.Background(), 0))
}

func TestFacadeInitFailure(t *testing.T) {
	engine := coretest.NewEngine()
	engine.FailStartWorker = errors.New("binary not found")
	f := media.NewFacade(engine, func(error) {})
	require.Error(t, f.Init(context.Background(), 2))
}

func TestFacadeRoutersRoundRobin(t *testing.T) {
	ctx := context.Background()
	engine := coretest.NewEngine()
	f := media.NewFacade(engine, func(error) {})
	require.NoError(t, f.Init(ctx, 3))

	channels := []domain.ChannelID{"c1", "c2", "c3", "c4", "c5", "c6"}
	for _, ch := range channels {
		_, err := f.GetOrCreateRouter(ctx, ch)
		require.NoError(t, err)
	}

	// Six channels across three workers land two routers on each.
	for _, w := range engine.Workers() {
		require.Equal(t, 2, w.RouterCount())
	}
}

func TestFacadeGetOrCreateRouterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine := coretest.NewEngine()
	f := media.NewFacade(engine, func(error) {})
	require.NoError(t, f.Init(ctx, 2))

	first, err := f.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)
	second, err := f.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)
	require.Equal(t, first.ID(), second.ID())
}

func TestFacadeCloseRouterAllowsRecreation(t *testing.T) {
	ctx := context.Background()
	engine := coretest.NewEngine()
	f := media.NewFacade(engine, func(error) {})
	require.NoError(t, f.Init(ctx, 1))

	first, err := f.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)
	f.CloseRouter("chan-voice")
	require.Eventually(t, first.(*coretest.Router).Closed, time.Second, 10*time.Millisecond)

	second, err := f.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), second.ID())
}

// CloseRouter detaches the channel mapping synchronously but must not wait
// on the engine, so callers holding their own locks stay responsive even
// when the engine stalls.
func TestFacadeCloseRouterDoesNotBlockOnEngine(t *testing.T) {
	ctx := context.Background()
	engine := coretest.NewEngine()
	f := media.NewFacade(engine, func(error) {})
	require.NoError(t, f.Init(ctx, 1))

	first, err := f.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)
	gate := make(chan struct{})
	first.(*coretest.Router).BlockClose = gate

	done := make(chan struct{})
	go func() {
		f.CloseRouter("chan-voice")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CloseRouter blocked on the engine close")
	}
	require.False(t, first.(*coretest.Router).Closed())

	// The mapping is already gone, so a new router can be built while the
	// old one is still tearing down.
	second, err := f.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), second.ID())

	close(gate)
	require.Eventually(t, first.(*coretest.Router).Closed, time.Second, 10*time.Millisecond)
}

func TestFacadeWorkerDeathIsFatal(t *testing.T) {
	ctx := context.Background()
	engine := coretest.NewEngine()

	var fatal error
	f := media.NewFacade(engine, func(err error) { fatal = err })
	require.NoError(t, f.Init(ctx, 1))

	cause := errors.New("worker subprocess exited")
	engine.Workers()[0].Kill(cause)
	require.ErrorIs(t, fatal, cause)
}

func TestFacadeCloseSuppressesDeathEscalation(t *testing.T) {
	ctx := context.Background()
	engine := coretest.NewEngine()

	var fatal error
	f := media.NewFacade(engine, func(err error) { fatal = err })
	require.NoError(t, f.Init(ctx, 1))
	_, err := f.GetOrCreateRouter(ctx, "chan-voice")
	require.NoError(t, err)

	worker := engine.Workers()[0]
	f.Close()
	require.True(t, worker.Closed())

	worker.Kill(errors.New("exited during shutdown"))
	require.NoError(t, fatal)

	_, err = f.GetOrCreateRouter(ctx, "chan-voice")
	require.ErrorIs(t, err, media.ErrNotInitialized)
}
