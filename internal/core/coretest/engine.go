// Package coretest provides deterministic in-memory doubles for the media
// engine and the signaling connection, so room and facade behavior can be
// tested without worker processes or sockets.
package coretest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/gavelinrobert-beep/Hearth/internal/core"
)

var seq atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

// Engine implements core.Engine with fully in-memory workers.
type Engine struct {
	mu      sync.Mutex
	workers []*Worker

	// FailStartWorker, when set, makes StartWorker return it.
	FailStartWorker error
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) StartWorker(ctx context.Context) (core.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailStartWorker != nil {
		return nil, e.FailStartWorker
	}
	w := &Worker{id: nextID("worker")}
	e.workers = append(e.workers, w)
	return w, nil
}

func (e *Engine) Workers() []*Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Worker(nil), e.workers...)
}

type Worker struct {
	id string

	mu      sync.Mutex
	died    func(error)
	closed  bool
	routers []*Router

	FailCreateRouter error
}

func (w *Worker) CreateRouter(ctx context.Context) (core.Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailCreateRouter != nil {
		return nil, w.FailCreateRouter
	}
	r := &Router{
		id:         nextID("router"),
		consumable: true,
		producers:  make(map[string]bool),
	}
	w.routers = append(w.routers, r)
	return r, nil
}

func (w *Worker) OnDied(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.died = fn
}

func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *Worker) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Worker) RouterCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.routers)
}

func (w *Worker) Routers() []*Router {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Router(nil), w.routers...)
}

// Kill simulates the worker process dying.
func (w *Worker) Kill(err error) {
	w.mu.Lock()
	died := w.died
	w.mu.Unlock()
	if died != nil {
		died(err)
	}
}

type Router struct {
	id string

	mu         sync.Mutex
	closed     bool
	consumable bool
	transports []*Transport
	producers  map[string]bool

	FailCreateTransport error

	// BlockClose, when set, stalls Close until the channel is closed.
	BlockClose chan struct{}
}

func (r *Router) ID() string { return r.id }

func (r *Router) RtpCapabilities() *mediasoup.RtpCapabilities {
	return &mediasoup.RtpCapabilities{
		Codecs: []*mediasoup.RtpCodecCapability{{
			Kind:      mediasoup.MediaKindAudio,
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		}},
	}
}

func (r *Router) CreateTransport(ctx context.Context) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("router %s closed", r.id)
	}
	if r.FailCreateTransport != nil {
		return nil, r.FailCreateTransport
	}
	t := &Transport{id: nextID("transport"), router: r}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *Router) CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return caps != nil && r.consumable && r.producers[producerID]
}

// SetConsumable toggles the capability negotiation check outcome.
func (r *Router) SetConsumable(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumable = ok
}

func (r *Router) Close() error {
	r.mu.Lock()
	gate := r.BlockClose
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, t := range r.transports {
		t.close()
	}
	return nil
}

func (r *Router) Transports() []*Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Transport(nil), r.transports...)
}

// Transport returns the fake transport with the given id, nil if unknown.
func (r *Router) Transport(id string) *Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transports {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Router) addProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[id] = true
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

type Transport struct {
	id     string
	router *Router

	mu        sync.Mutex
	connected bool
	closed    bool
	producers []*Producer
	consumers []*Consumer

	FailConnect error
	FailProduce error
	FailConsume error
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Options() core.TransportOptions {
	return core.TransportOptions{
		ID:             t.id,
		IceParameters:  mediasoup.IceParameters{UsernameFragment: t.id + "-ufrag", Password: t.id + "-pwd"},
		IceCandidates:  []mediasoup.IceCandidate{},
		DtlsParameters: mediasoup.DtlsParameters{},
	}
}

func (t *Transport) Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailConnect != nil {
		return t.FailConnect
	}
	t.connected = true
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Produce(ctx context.Context, kind mediasoup.MediaKind, rtp *mediasoup.RtpParameters) (core.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailProduce != nil {
		return nil, t.FailProduce
	}
	p := &Producer{id: nextID("producer"), kind: kind, transport: t}
	t.producers = append(t.producers, p)
	t.router.addProducer(p.id)
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producerID string, caps *mediasoup.RtpCapabilities) (core.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailConsume != nil {
		return nil, t.FailConsume
	}
	c := &Consumer{id: nextID("consumer"), producerID: producerID}
	t.consumers = append(t.consumers, c)
	return c, nil
}

func (t *Transport) Close() error {
	t.close()
	return nil
}

// close cascades to all producers and consumers, mirroring engine semantics.
func (t *Transport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, p := range t.producers {
		p.setClosed()
		t.router.removeProducer(p.id)
	}
	for _, c := range t.consumers {
		c.setClosed()
	}
}

func (t *Transport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Producers() []*Producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Producer(nil), t.producers...)
}

func (t *Transport) Consumers() []*Consumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Consumer(nil), t.consumers...)
}

type Producer struct {
	id        string
	kind      mediasoup.MediaKind
	transport *Transport

	mu     sync.Mutex
	closed bool
}

func (p *Producer) ID() string                { return p.id }
func (p *Producer) Kind() mediasoup.MediaKind { return p.kind }

func (p *Producer) Close() error {
	p.setClosed()
	p.transport.router.removeProducer(p.id)
	return nil
}

func (p *Producer) setClosed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *Producer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	id         string
	producerID string

	mu     sync.Mutex
	closed bool
}

func (c *Consumer) ID() string                { return c.id }
func (c *Consumer) ProducerID() string        { return c.producerID }
func (c *Consumer) Kind() mediasoup.MediaKind { return mediasoup.MediaKindAudio }

func (c *Consumer) RtpParameters() *mediasoup.RtpParameters {
	return &mediasoup.RtpParameters{}
}

func (c *Consumer) Close() error {
	c.setClosed()
	return nil
}

func (c *Consumer) setClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Consumer) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
