// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package subscribe

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/internal/logging"
	"github.com/fluxgate/experiment/internal/metrics"
	"github.com/fluxgate/experiment/internal/set"
	"github.com/fluxgate/experiment/state"
)

// Message is anything the Hub hands to a subscriber's queue; a transport
// type-switches on it to pick a wire encoding (§6).
type Message any

// Subscriber is one registered downstream evaluator (§4.8). All of its
// state beyond the queue itself is owned by the Hub; the Subscriber value
// is handed out so a transport goroutine can drain Queue() and call Ack.
type Subscriber struct {
	id       string
	services set.Set[string]
	queue    chan Message
	stale    atomic.Bool
}

// ID returns the subscriber's registered id.
func (s *Subscriber) ID() string { return s.id }

// Queue returns the channel a transport goroutine should range over to
// obtain messages to send downstream.
func (s *Subscriber) Queue() <-chan Message { return s.queue }

// Stale reports whether this subscriber has dropped a message and must
// re-register to get a consistent view (§4.8 "marks the subscriber stale").
func (s *Subscriber) Stale() bool { return s.stale.Load() }

func (s *Subscriber) matches(entityServices []string, single string) bool {
	if s.services.Len() == 0 {
		return true // no filter configured: subscribed to everything
	}
	if single != "" {
		return s.services.Contains(single)
	}
	for _, svc := range entityServices {
		if s.services.Contains(svc) {
			return true
		}
	}
	return false
}

// Hub is the C8 Subscriber Fan-out. It implements state.Publisher, so a
// state.Manager can be wired straight to it: every applied ConfigChange is
// fanned out to every registered, matching Subscriber.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber

	maxSubscribers int
	queueDepth     int

	log     logging.Logger
	metrics *metrics.Metrics
}

var _ state.Publisher = (*Hub)(nil)

// Config holds the Hub's tunable knobs (§6 max_subscribers,
// subscriber_queue_depth).
type Config struct {
	MaxSubscribers int
	QueueDepth     int
}

// DefaultConfig returns conservative fan-out defaults.
func DefaultConfig() Config {
	return Config{MaxSubscribers: 256, QueueDepth: 1024}
}

// New constructs a Hub.
func New(cfg Config, log logging.Logger, m *metrics.Metrics) *Hub {
	if cfg.MaxSubscribers <= 0 {
		cfg.MaxSubscribers = 256
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	if log == nil {
		log = logging.NewNoOp()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &Hub{subs: map[string]*Subscriber{}, maxSubscribers: cfg.MaxSubscribers, queueDepth: cfg.QueueDepth, log: log, metrics: m}
}

// ErrTooManySubscribers is returned by Register once max_subscribers is
// reached (§6).
var ErrTooManySubscribers = errTooManySubscribers{}

type errTooManySubscribers struct{}

func (errTooManySubscribers) Error() string { return "subscribe: max_subscribers reached" }

// Register admits a new subscriber, enqueues its FullReload immediately
// (§4.8 "On registration, the Manager sends a FullReload event containing
// the subset of the current Snapshot that matches the subscriber's
// services"), and returns the handle a transport goroutine drains.
func (h *Hub) Register(req SubscribeRequest, snap *catalog.Snapshot) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subs[req.ID]; !exists && len(h.subs) >= h.maxSubscribers {
		return nil, ErrTooManySubscribers
	}

	sub := &Subscriber{
		id:       req.ID,
		services: set.Of(req.Services...),
		queue:    make(chan Message, h.queueDepth),
	}
	h.subs[req.ID] = sub
	h.metrics.SubscriberCount.Set(float64(len(h.subs)))

	sub.queue <- buildFullReload(snap, sub.services)
	return sub, nil
}

// Unregister removes a subscriber, e.g. on transport close (§4.8
// "Disconnection is detected by transport close; state is discarded").
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		close(sub.queue)
		delete(h.subs, id)
		h.metrics.SubscriberCount.Set(float64(len(h.subs)))
	}
}

// Ack records a subscriber's applied_version (§6). It is advisory only —
// the Hub never blocks delivery on acks, it exists so operators can
// observe lag.
func (h *Hub) Ack(ack Ack) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subs[ack.SubscriberID]; ok {
		h.log.Debug("subscriber ack", zap.String("id", ack.SubscriberID), zap.Int64("applied_version", ack.AppliedVersion))
	}
}

// Publish fans a ConfigChange out to every matching, non-stale subscriber
// (§4.7, §4.8). Delivery is non-blocking: a full queue marks the
// subscriber stale and records an overflow instead of stalling the writer
// that produced the change.
//
// A deletion event carries no entity, so it cannot be filtered by service;
// it is delivered to every subscriber, who must already hold (or evict) the
// entity locally by id.
func (h *Hub) Publish(c state.ConfigChange) {
	msg := newConfigChangeMsg(c)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.Stale() || !h.changeMatches(sub, c) {
			continue
		}
		select {
		case sub.queue <- msg:
		default:
			sub.stale.Store(true)
			h.metrics.SubscriberOverflows.Inc()
			h.log.Warn("subscriber queue full, marked stale", zap.String("id", sub.id))
		}
	}
}

func (h *Hub) changeMatches(sub *Subscriber, c state.ConfigChange) bool {
	switch p := c.Payload.(type) {
	case *catalog.Layer:
		return sub.matches(p.Services, "")
	case *catalog.Experiment:
		return sub.matches(nil, p.Service)
	default:
		return true
	}
}

func buildFullReload(snap *catalog.Snapshot, services set.Set[string]) FullReload {
	reload := FullReload{Version: snap.Version(), Timestamp: timestamppb.New(time.Now())}
	if services.Len() == 0 {
		for _, svc := range snap.Services() {
			reload.Layers = append(reload.Layers, snap.LayersFor(svc)...)
		}
	} else {
		for _, svc := range services.List() {
			reload.Layers = append(reload.Layers, snap.LayersFor(svc)...)
		}
	}
	seen := map[int64]struct{}{}
	for _, l := range reload.Layers {
		for _, rng := range l.Ranges {
			eid, _, ok := snap.ExperimentOf(rng.VID)
			if !ok {
				continue
			}
			if _, dup := seen[eid]; dup {
				continue
			}
			seen[eid] = struct{}{}
			if exp, ok := snap.Experiment(eid); ok {
				reload.Experiments = append(reload.Experiments, exp)
			}
		}
	}
	return reload
}

// SubscriberCount returns the number of currently registered subscribers,
// for admin inspection.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
