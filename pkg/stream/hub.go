package stream

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"huddle/pkg/logger"
)

var replacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "huddle_stream_snapshots_replaced_total",
	Help: "Snapshots dropped in favor of a newer one before the subscriber consumed them.",
}, []string{"topic"})

var publishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "huddle_stream_snapshots_published_total",
	Help: "Snapshots published to subscribers.",
}, []string{"topic"})

func init() {
	prometheus.MustRegister(replacedTotal, publishedTotal)
}

// Sub is a live subscription to one topic. C delivers full-state snapshots,
// not diffs; a slow consumer only ever sees the newest pending snapshot.
type Sub struct {
	C     chan interface{}
	topic string
	h     *Hub
	once  sync.Once
}

// Topic returns the topic this subscription is attached to.
func (s *Sub) Topic() string { return s.topic }

// Cancel detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Sub) Cancel() {
	s.once.Do(func() {
		s.h.mu.Lock()
		if set, ok := s.h.subs[s.topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.h.subs, s.topic)
			}
		}
		s.h.mu.Unlock()
		close(s.C)
	})
}

// Hub fans full-state snapshots out to topic subscribers. Delivery is
// latest-wins: each subscriber channel buffers one snapshot and a new
// publish replaces an unconsumed one rather than blocking the writer.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Sub]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Sub]struct{})}
}

// Subscribe attaches a new subscriber to topic.
func (h *Hub) Subscribe(topic string) *Sub {
	s := &Sub{C: make(chan interface{}, 1), topic: topic, h: h}
	h.mu.Lock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Sub]struct{})
		h.subs[topic] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	logger.Debug("stream_subscribed", "topic", topic)
	return s
}

// Publish delivers snap to every subscriber of topic. Never blocks.
func (h *Hub) Publish(topic string, snap interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[topic]
	if len(set) == 0 {
		return
	}
	publishedTotal.WithLabelValues(topic).Inc()
	for s := range set {
		select {
		case s.C <- snap:
		default:
			// replace the stale pending snapshot with the new one
			select {
			case <-s.C:
				replacedTotal.WithLabelValues(topic).Inc()
			default:
			}
			select {
			case s.C <- snap:
			default:
			}
		}
	}
}

// Subscribers returns the current subscriber count for topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}
