// Package media owns the engine worker pool and the channel→router mapping.
package media

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/gavelinrobert-beep/Hearth/internal/core"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

var ErrNotInitialized = errors.New("media facade not initialized")

// Facade owns a fixed pool of media workers and assigns one router per
// voice channel, round-robin across the pool. A router stays on its worker
// for the lifetime of its room.
//
// A worker dying is fatal to the process: a dead worker silently drops
// every room routed through it, so the facade escalates instead of running
// degraded.
type Facade struct {
	engine  core.Engine
	onFatal func(error)

	mu      sync.Mutex
	workers []core.Worker
	next    int
	routers map[domain.ChannelID]core.Router
	closing bool

	group singleflight.Group
}

// NewFacade wires the facade over an engine. onFatal handles worker death;
// nil means log.Fatal (process exit).
func NewFacade(engine core.Engine, onFatal func(error)) *Facade {
	if onFatal == nil {
		onFatal = func(err error) {
			log.Fatal().Err(err).Str("module", "media.facade").Msg("media worker died")
		}
	}
	return &Facade{
		engine:  engine,
		onFatal: onFatal,
		routers: make(map[domain.ChannelID]core.Router),
	}
}

// Init starts the worker pool. Pool size is fixed for the process lifetime.
func (f *Facade) Init(ctx context.Context, workerCount int) error {
	if workerCount < 1 {
		return errors.New("worker count must be at least 1")
	}
	for i := 0; i < workerCount; i++ {
		worker, err := f.engine.StartWorker(ctx)
		if err != nil {
			return err
		}
		worker.OnDied(f.workerDied)
		f.mu.Lock()
		f.workers = append(f.workers, worker)
		f.mu.Unlock()
		log.Info().Str("module", "media.facade").Int("worker", i).Msg("media worker started")
	}
	return nil
}

func (f *Facade) workerDied(err error) {
	f.mu.Lock()
	closing := f.closing
	f.mu.Unlock()
	if closing {
		return
	}
	f.onFatal(err)
}

func (f *Facade) WorkerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.workers)
}

// GetOrCreateRouter is idempotent per channel. Creation is deduplicated per
// channel id without holding the facade lock across the engine call, so one
// slow creation cannot stall routers of other channels.
func (f *Facade) GetOrCreateRouter(ctx context.Context, channelID domain.ChannelID) (core.Router, error) {
	f.mu.Lock()
	if router, ok := f.routers[channelID]; ok {
		f.mu.Unlock()
		return router, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do(string(channelID), func() (any, error) {
		f.mu.Lock()
		if router, ok := f.routers[channelID]; ok {
			f.mu.Unlock()
			return router, nil
		}
		if len(f.workers) == 0 {
			f.mu.Unlock()
			return nil, ErrNotInitialized
		}
		worker := f.workers[f.next%len(f.workers)]
		f.next++
		f.mu.Unlock()

		router, err := worker.CreateRouter(ctx)
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.routers[channelID] = router
		f.mu.Unlock()
		log.Info().Str("module", "media.facade").Str("channel", string(channelID)).
			Str("router", router.ID()).Msg("router created")
		return router, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.Router), nil
}

// CloseRouter releases the channel's router. Implements core.RouterCloser;
// the registry calls it, possibly while holding its own lock, when the
// last participant leaves. The router is detached before returning, so no
// later lookup can resolve it; the engine-side close runs in the
// background to keep the caller's lock off the engine.
func (f *Facade) CloseRouter(channelID domain.ChannelID) {
	f.mu.Lock()
	router, ok := f.routers[channelID]
	delete(f.routers, channelID)
	f.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		if err := router.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media.facade").Str("channel", string(channelID)).
				Msg("router close")
			return
		}
		log.Info().Str("module", "media.facade").Str("channel", string(channelID)).Msg("router closed")
	}()
}

// Close tears down all routers, then all workers. Worker deaths observed
// past this point are expected and not fatal.
func (f *Facade) Close() {
	f.mu.Lock()
	f.closing = true
	routers := f.routers
	workers := f.workers
	f.routers = make(map[domain.ChannelID]core.Router)
	f.workers = nil
	f.mu.Unlock()

	for channelID, router := range routers {
		if err := router.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media.facade").Str("channel", string(channelID)).
				Msg("router close")
		}
	}
	for _, worker := range workers {
		if err := worker.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media.facade").Msg("worker close")
		}
	}
	log.Info().Str("module", "media.facade").Msg("media engine closed")
}
