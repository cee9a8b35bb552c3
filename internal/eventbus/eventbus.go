// Package eventbus provides the process-wide fan-out of match events.
// Publishing is fire-and-forget: each subscriber consumes from its own
// buffered channel, so a slow or panicking subscriber never stalls the
// pipeline or its peers.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ernie/pickup-coordinator/internal/domain"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_bus_events_published_total",
			Help: "Total number of match events published to the bus",
		},
		[]string{"kind"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_bus_events_dropped_total",
			Help: "Total number of events dropped because a subscriber queue was full",
		},
		[]string{"kind"},
	)
)

// Handler processes one delivered match event.
type Handler func(ev domain.MatchEvent)

// Subscription is the handle returned by Subscribe. Unsubscribe releases the
// subscriber's queue and goroutine deterministically.
type Subscription struct {
	id   string
	kind domain.EventKind
	all  bool
	ch   chan domain.MatchEvent
	bus  *Bus
}

// ID returns the subscription's identifier, useful for log correlation.
func (s *Subscription) ID() string { return s.id }

// Unsubscribe removes the subscription from the bus. Safe to call more than
// once and after the bus is closed.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

// Bus is a many-subscriber event fan-out keyed by event kind.
type Bus struct {
	log *slog.Logger

	mu     sync.RWMutex
	subs   map[domain.EventKind]map[*Subscription]struct{}
	all    map[*Subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates an empty bus.
func New(log *slog.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[domain.EventKind]map[*Subscription]struct{}),
		all:  make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a handler for one event kind. The handler runs on its
// own goroutine; events queue in a bounded buffer and are dropped when the
// subscriber cannot keep up.
func (b *Bus) Subscribe(kind domain.EventKind, h Handler) *Subscription {
	sub := &Subscription{
		id:   uuid.NewString(),
		kind: kind,
		ch:   make(chan domain.MatchEvent, 64),
		bus:  b,
	}
	b.attach(sub, h)
	return sub
}

// SubscribeAll registers a handler that receives every event kind.
func (b *Bus) SubscribeAll(h Handler) *Subscription {
	sub := &Subscription{
		id:  uuid.NewString(),
		all: true,
		ch:  make(chan domain.MatchEvent, 64),
		bus: b,
	}
	b.attach(sub, h)
	return sub
}

// Publish delivers an event to every subscriber of its kind. It never blocks:
// a full subscriber queue drops the event for that subscriber only.
func (b *Bus) Publish(ev domain.MatchEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	eventsPublished.WithLabelValues(string(ev.Kind)).Inc()

	for sub := range b.subs[ev.Kind] {
		b.send(sub, ev)
	}
	for sub := range b.all {
		b.send(sub, ev)
	}
}

// Close unsubscribes everything and waits for in-flight handlers to return.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, kindSubs := range b.subs {
		for sub := range kindSubs {
			close(sub.ch)
		}
	}
	for sub := range b.all {
		close(sub.ch)
	}
	b.subs = make(map[domain.EventKind]map[*Subscription]struct{})
	b.all = make(map[*Subscription]struct{})
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) attach(sub *Subscription, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return
	}
	if sub.all {
		b.all[sub] = struct{}{}
	} else {
		if b.subs[sub.kind] == nil {
			b.subs[sub.kind] = make(map[*Subscription]struct{})
		}
		b.subs[sub.kind][sub] = struct{}{}
	}
	b.wg.Add(1)
	go b.deliver(sub, h)
}

func (b *Bus) send(sub *Subscription, ev domain.MatchEvent) {
	select {
	case sub.ch <- ev:
	default:
		eventsDropped.WithLabelValues(string(ev.Kind)).Inc()
		b.log.Debug("subscriber queue full, dropping event",
			"subscription", sub.id, "kind", ev.Kind)
	}
}

// remove detaches a subscription and closes its queue. Map membership is the
// ownership token, so a second remove (or remove after Close) is a no-op.
// Closing under the write lock is safe: Publish sends only while holding the
// read lock.
func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.all {
		if _, ok := b.all[sub]; !ok {
			return
		}
		delete(b.all, sub)
	} else {
		kindSubs := b.subs[sub.kind]
		if _, ok := kindSubs[sub]; !ok {
			return
		}
		delete(kindSubs, sub)
	}
	close(sub.ch)
}

func (b *Bus) deliver(sub *Subscription, h Handler) {
	defer b.wg.Done()
	for ev := range sub.ch {
		b.invoke(sub, h, ev)
	}
}

// invoke isolates handler panics to the faulting subscriber.
func (b *Bus) invoke(sub *Subscription, h Handler, ev domain.MatchEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber panicked",
				"subscription", sub.id, "kind", ev.Kind, "panic", r)
		}
	}()
	h(ev)
}
