// Package engine adapts the mediasoup media-transport library to the narrow
// capability interfaces in core. Nothing outside this package touches the
// library's worker/router/transport objects directly.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/config"
	"github.com/gavelinrobert-beep/Hearth/internal/core"
)

const (
	defaultWorkerBin  = "mediasoup-worker"
	deathPollInterval = time.Second
)

// RouterCodecs is the fixed capability set of every voice channel router:
// a single Opus codec, 48kHz, stereo.
func RouterCodecs() []*mediasoup.RtpCodecCapability {
	return []*mediasoup.RtpCodecCapability{{
		Kind:      mediasoup.MediaKindAudio,
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}}
}

// Mediasoup implements core.Engine over mediasoup worker subprocesses.
type Mediasoup struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Mediasoup {
	return &Mediasoup{cfg: cfg}
}

func (e *Mediasoup) StartWorker(ctx context.Context) (core.Worker, error) {
	bin := e.cfg.WorkerBin
	if bin == "" {
		bin = defaultWorkerBin
	}

	w, err := mediasoup.NewWorker(bin, func(s *mediasoup.WorkerSettings) {
		s.LogLevel = mediasoup.WorkerLogLevelWarn
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "engine").Int("pid", w.Pid()).Msg("mediasoup worker spawned")
	return &worker{w: w, cfg: e.cfg}, nil
}

type worker struct {
	w   *mediasoup.Worker
	cfg *config.Config

	mu      sync.Mutex
	closing bool
}

// OnDied watches for the worker subprocess exiting. The library exposes no
// close listener on Worker, so a watcher goroutine polls Closed and treats
// any exit that was not requested through Close as death.
func (w *worker) OnDied(fn func(error)) {
	go func() {
		ticker := time.NewTicker(deathPollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !w.w.Closed() {
				continue
			}
			w.mu.Lock()
			closing := w.closing
			w.mu.Unlock()
			if !closing {
				err := w.w.Err()
				if err == nil {
					err = errors.New("mediasoup worker exited unexpectedly")
				}
				fn(err)
			}
			return
		}
	}()
}

func (w *worker) Close() error {
	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()
	w.w.Close()
	return nil
}

func (w *worker) CreateRouter(ctx context.Context) (core.Router, error) {
	r, err := w.w.CreateRouter(&mediasoup.RouterOptions{MediaCodecs: RouterCodecs()})
	if err != nil {
		return nil, err
	}
	return &router{r: r, cfg: w.cfg}, nil
}

type router struct {
	r   *mediasoup.Router
	cfg *config.Config
}

func (r *router) ID() string { return r.r.Id() }

func (r *router) RtpCapabilities() *mediasoup.RtpCapabilities {
	return r.r.RtpCapabilities()
}

func (r *router) CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool {
	return r.r.CanConsume(producerID, caps)
}

func (r *router) Close() error { return r.r.Close() }

func (r *router) CreateTransport(ctx context.Context) (core.Transport, error) {
	t, err := r.r.CreateWebRtcTransport(&mediasoup.WebRtcTransportOptions{
		ListenInfos: []mediasoup.TransportListenInfo{{
			Protocol:         mediasoup.TransportProtocolUDP,
			Ip:               r.cfg.ListenIP,
			AnnouncedAddress: r.cfg.AnnouncedIP,
			PortRange: mediasoup.TransportPortRange{
				Min: r.cfg.RtcMinPort,
				Max: r.cfg.RtcMaxPort,
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	return &transport{t: t}, nil
}

type transport struct {
	t *mediasoup.Transport
}

func (t *transport) ID() string { return t.t.Id() }

func (t *transport) Options() core.TransportOptions {
	data := t.t.Data().WebRtcTransportData
	return core.TransportOptions{
		ID:             t.t.Id(),
		IceParameters:  data.IceParameters,
		IceCandidates:  data.IceCandidates,
		DtlsParameters: data.DtlsParameters,
	}
}

func (t *transport) Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error {
	return t.t.ConnectContext(ctx, &mediasoup.TransportConnectOptions{DtlsParameters: dtls})
}

func (t *transport) Produce(ctx context.Context, kind mediasoup.MediaKind, rtp *mediasoup.RtpParameters) (core.Producer, error) {
	p, err := t.t.ProduceContext(ctx, &mediasoup.ProducerOptions{Kind: kind, RtpParameters: rtp})
	if err != nil {
		return nil, err
	}
	return &producer{p: p}, nil
}

func (t *transport) Consume(ctx context.Context, producerID string, caps *mediasoup.RtpCapabilities) (core.Consumer, error) {
	c, err := t.t.ConsumeContext(ctx, &mediasoup.ConsumerOptions{
		ProducerId:      producerID,
		RtpCapabilities: caps,
		Paused:          false,
	})
	if err != nil {
		return nil, err
	}
	return &consumer{c: c}, nil
}

func (t *transport) Close() error { return t.t.Close() }

type producer struct {
	p *mediasoup.Producer
}

func (p *producer) ID() string                { return p.p.Id() }
func (p *producer) Kind() mediasoup.MediaKind { return p.p.Kind() }
func (p *producer) Close() error              { return p.p.Close() }

type consumer struct {
	c *mediasoup.Consumer
}

func (c *consumer) ID() string                { return c.c.Id() }
func (c *consumer) ProducerID() string        { return c.c.ProducerId() }
func (c *consumer) Kind() mediasoup.MediaKind { return c.c.Kind() }

func (c *consumer) RtpParameters() *mediasoup.RtpParameters {
	return c.c.RtpParameters()
}

func (c *consumer) Close() error { return c.c.Close() }
