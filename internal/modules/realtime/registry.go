// README: Subscription registry; mutex-guarded connection map with non-blocking fan-out.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"vitecab/internal/logger"
)

// Frame is one named message on a subscriber stream.
type Frame struct {
	Event string
	Data  []byte
}

var tickFrame = Frame{Event: "tick", Data: []byte("{}")}

type hello struct {
	OK     bool    `json:"ok"`
	ID     string  `json:"id"`
	Topics []Topic `json:"topics"`
}

type Conn struct {
	ID     string
	topics []Topic
	set    map[Topic]struct{}
	frames chan Frame
	closed chan struct{}
	once   sync.Once
}

func (c *Conn) Topics() []Topic         { return c.topics }
func (c *Conn) Frames() <-chan Frame    { return c.frames }
func (c *Conn) Closed() <-chan struct{} { return c.closed }

func (c *Conn) subscribed(t Topic) bool {
	_, ok := c.set[t]
	return ok
}

type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	buffer int
	log    *logger.Logger
}

func NewRegistry(buffer int, log *logger.Logger) *Registry {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{conns: make(map[string]*Conn), buffer: buffer, log: log}
}

// Register opens a connection for the given topics (all topics when empty).
// The hello frame is already queued when Register returns.
func (r *Registry) Register(topics []Topic) *Conn {
	if len(topics) == 0 {
		topics = AllTopics
	}
	c := &Conn{
		ID:     uuid.NewString(),
		topics: append([]Topic(nil), topics...),
		set:    make(map[Topic]struct{}, len(topics)),
		frames: make(chan Frame, r.buffer+1),
		closed: make(chan struct{}),
	}
	for _, t := range topics {
		c.set[t] = struct{}{}
	}
	data, _ := json.Marshal(hello{OK: true, ID: c.ID, Topics: c.topics})
	c.frames <- Frame{Event: "hello", Data: data}

	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
	openConnections.Inc()
	r.log.WithFields(map[string]any{"conn_id": c.ID, "topics": c.topics}).Debug("subscriber connected")
	return c
}

// Unregister is idempotent; no frames are queued for c afterwards.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	_, ok := r.conns[c.ID]
	delete(r.conns, c.ID)
	r.mu.Unlock()

	c.once.Do(func() { close(c.closed) })
	if ok {
		openConnections.Dec()
		r.log.WithField("conn_id", c.ID).Debug("subscriber disconnected")
	}
}

// Broadcast queues data under the topic's event name on every subscribed
// connection and returns how many accepted it. Full queues drop the frame.
func (r *Registry) Broadcast(topic Topic, data []byte) int {
	if !ValidTopic(topic) {
		return 0
	}
	f := Frame{Event: string(topic), Data: data}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, c := range r.conns {
		if !c.subscribed(topic) {
			continue
		}
		select {
		case c.frames <- f:
			delivered++
		default:
			droppedFrames.Inc()
			r.log.WithFields(map[string]any{"conn_id": c.ID, "topic": topic}).Warn("subscriber queue full, frame dropped")
		}
	}
	return delivered
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
