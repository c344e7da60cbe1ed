package supervisor

import (
	"sync"

	"github.com/google/uuid"
	"github.com/guseggert/wrapperconsole/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	defaultHistory     = 200
	defaultClientQueue = 256
)

// Hub fans events out to connected clients.
// New clients get the recent log history followed by the current state.
type Hub struct {
	log         *zap.SugaredLogger
	metrics     *Metrics
	historySize int
	queueSize   int

	mu      sync.Mutex
	clients map[string]*client
	history []protocol.Event
	state   *protocol.Event
}

type client struct {
	id    string
	queue chan protocol.Event
}

type HubOption func(h *Hub)

func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		h.log = l.Named("hub").Sugar()
	}
}

func WithHistory(n int) HubOption {
	return func(h *Hub) {
		h.historySize = n
	}
}

func WithClientQueue(n int) HubOption {
	return func(h *Hub) {
		h.queueSize = n
	}
}

func WithHubMetrics(m *Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		log:         zap.NewNop().Sugar(),
		historySize: defaultHistory,
		queueSize:   defaultClientQueue,
		clients:     map[string]*client{},
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return h
}

// Publish records ev and queues it for every client.
// A client whose queue is full is dropped.
func (h *Hub) Publish(ev protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Type == protocol.EventState {
		h.state = &ev
	} else if h.historySize > 0 {
		if len(h.history) == h.historySize {
			copy(h.history, h.history[1:])
			h.history = h.history[:len(h.history)-1]
		}
		h.history = append(h.history, ev)
	}

	for id, c := range h.clients {
		select {
		case c.queue <- ev:
		default:
			h.log.Warnw("dropping slow client", "ID", id)
			h.removeLocked(c)
		}
	}
}

// register adds a client and queues the replay for it.
func (h *Hub) register() *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.queueSize
	if n := len(h.history) + 1; n > size {
		size = n
	}
	c := &client{
		id:    uuid.NewString(),
		queue: make(chan protocol.Event, size),
	}
	for _, ev := range h.history {
		c.queue <- ev
	}
	if h.state != nil {
		c.queue <- *h.state
	}
	h.clients[c.id] = c
	h.metrics.Clients.Inc()
	h.log.Debugw("registered client", "ID", c.id, "Replayed", len(c.queue))
	return c
}

// unregister removes c and closes its queue. It is safe to call for a client that was already dropped.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.queue)
	h.metrics.Clients.Dec()
	h.log.Debugw("removed client", "ID", c.id)
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// next blocks for the next queued event and then drains whatever else is already queued,
// so a burst of events goes out as one frame. ok is false once the queue is closed and empty.
func (c *client) next() (batch []protocol.Event, ok bool) {
	ev, ok := <-c.queue
	if !ok {
		return nil, false
	}
	batch = append(batch, ev)
	for {
		select {
		case ev, ok := <-c.queue:
			if !ok {
				return batch, true
			}
			batch = append(batch, ev)
		default:
			return batch, true
		}
	}
}
