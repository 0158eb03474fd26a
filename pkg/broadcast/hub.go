// Package broadcast fans task changes out to every connected client.
//
// Delivery is best-effort and at-most-once: Publish never blocks, and a
// subscriber whose buffer is full simply misses the event. Every mutation
// event gets a sequence number assigned under the same lock that enqueues
// it, so all subscribers see mutations in the order they were published.
// Heartbeats remove subscribers that stop acknowledging pings.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"taskboard/internal/logging"
	"taskboard/pkg/task"
)

// Action names the kind of event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionPing   Action = "ping"
)

// Event is one notification. Mutation events carry Task, except deletes,
// which carry only TaskID.
type Event struct {
	Seq    uint64     `json:"seq,omitempty"`
	Action Action     `json:"action"`
	Task   *task.Task `json:"task,omitempty"`
	TaskID string     `json:"taskId,omitempty"`
	At     time.Time  `json:"at"`
}

// Config tunes a Hub.
type Config struct {
	Buffer            int           // per-subscriber channel capacity
	HeartbeatInterval time.Duration // time between pings
	MaxMissed         int           // unacknowledged pings before removal
}

// DefaultConfig mirrors the socket settings the board has always used:
// a ping every 25s and removal after two silent intervals.
func DefaultConfig() Config {
	return Config{Buffer: 64, HeartbeatInterval: 25 * time.Second, MaxMissed: 2}
}

// Subscriber is one connected client.
type Subscriber struct {
	id        uint64
	ch        chan Event
	missed    atomic.Int32
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// ID identifies the subscriber in logs.
func (s *Subscriber) ID() uint64 { return s.id }

// C delivers events. It is closed when the subscriber is removed.
func (s *Subscriber) C() <-chan Event { return s.ch }

// Ack records that the client answered a ping.
func (s *Subscriber) Ack() { s.missed.Store(0) }

// Dropped returns how many events were discarded because C was full.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Hub is the in-process fan-out point. Construct one per server with New,
// start it with Run, and pass it to whatever publishes or subscribes.
type Hub struct {
	cfg    Config
	log    *logging.Logger
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	seq    uint64
	nextID uint64
	closed bool
}

// New creates a Hub.
func New(cfg Config, log *logging.Logger) *Hub {
	def := DefaultConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.MaxMissed <= 0 {
		cfg.MaxMissed = def.MaxMissed
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		cfg:  cfg,
		log:  log.WithComponent("broadcast"),
		subs: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber. It receives only events published
// after this call returns. Subscribing to a closed hub yields a subscriber
// whose channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscriber{id: h.nextID, ch: make(chan Event, h.cfg.Buffer)}
	if h.closed {
		s.close()
		return s
	}
	h.subs[s] = struct{}{}
	h.log.Debug("subscriber added", "subscriber", s.id, "subscribers", len(h.subs))
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	s.close()
	if ok {
		h.log.Debug("subscriber removed", "subscriber", s.id, "subscribers", n)
	}
}

// Publish stamps e with the next sequence number and delivers it to every
// current subscriber without blocking. It returns the stamped event and
// the number of subscribers that accepted it.
func (h *Hub) Publish(e Event) (Event, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	e.Seq = h.seq
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	delivered := 0
	for s := range h.subs {
		select {
		case s.ch <- e:
			delivered++
		default:
			// subscriber is behind; drop to avoid blocking the publisher
			s.dropped.Add(1)
		}
	}
	return e, delivered
}

// Len returns the number of current subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Seq returns the last sequence number issued.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Run sends heartbeats until ctx is cancelled, then closes every
// subscriber.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()
	h.log.Info("hub started", "heartbeat", h.cfg.HeartbeatInterval.String(), "max_missed", h.cfg.MaxMissed)

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return nil
		case <-ticker.C:
			h.beat()
		}
	}
}

// Close removes all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscriber]struct{})
	h.closed = true
	h.mu.Unlock()

	for s := range subs {
		s.close()
	}
	h.log.Info("hub stopped", "drained", len(subs))
}

// beat removes subscribers that have missed MaxMissed pings and pings the
// rest. It returns how many were removed.
func (h *Hub) beat() int {
	h.mu.Lock()
	var dead []*Subscriber
	ping := Event{Action: ActionPing, At: time.Now().UTC()}
	for s := range h.subs {
		if int(s.missed.Load()) >= h.cfg.MaxMissed {
			dead = append(dead, s)
			delete(h.subs, s)
			continue
		}
		s.missed.Add(1)
		select {
		case s.ch <- ping:
		default:
		}
	}
	n := len(h.subs)
	h.mu.Unlock()

	for _, s := range dead {
		s.close()
		h.log.Warn("subscriber missed heartbeats, removing", "subscriber", s.id, "dropped", s.Dropped(), "subscribers", n)
	}
	return len(dead)
}
