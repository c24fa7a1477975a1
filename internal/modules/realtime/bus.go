// README: Event bus; validates topics, fans out locally or through the relay, forwards to a broker.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"vitecab/internal/logger"
)

// Envelope is the payload delivered under a topic event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RelayMessage is the cross-instance wire form of an emitted event.
type RelayMessage struct {
	Topic   Topic           `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Relay shares emitted events between API instances.
type Relay interface {
	Publish(ctx context.Context, msg RelayMessage) error
	// Subscribe blocks, handing every received message to deliver, until ctx ends.
	Subscribe(ctx context.Context, deliver func(RelayMessage)) error
}

// Forwarder pushes emitted events to an external broker.
type Forwarder interface {
	Forward(ctx context.Context, msg RelayMessage) error
	Close() error
}

type Bus struct {
	registry  *Registry
	relay     Relay
	forwarder Forwarder
	relayQ    chan RelayMessage
	forwardQ  chan RelayMessage
	log       *logger.Logger
}

type BusOption func(*Bus)

func WithRelay(r Relay, queue int) BusOption {
	return func(b *Bus) {
		b.relay = r
		b.relayQ = make(chan RelayMessage, queue)
	}
}

func WithForwarder(f Forwarder, queue int) BusOption {
	return func(b *Bus) {
		b.forwarder = f
		b.forwardQ = make(chan RelayMessage, queue)
	}
}

func NewBus(registry *Registry, log *logger.Logger, opts ...BusOption) *Bus {
	if log == nil {
		log = logger.Nop()
	}
	b := &Bus{registry: registry, log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Registry() *Registry { return b.registry }

// Emit never blocks on I/O and never fails the caller. Unknown topics are ignored.
func (b *Bus) Emit(topic Topic, event string, data any) {
	if !ValidTopic(topic) {
		b.log.WithField("topic", topic).Debug("emit to unknown topic ignored")
		return
	}
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		b.log.WithError(err).WithFields(map[string]any{"topic": topic, "event": event}).Error("encode event")
		return
	}
	emittedEvents.WithLabelValues(string(topic)).Inc()
	msg := RelayMessage{Topic: topic, Event: event, Payload: payload}

	delivered := false
	if b.relayQ != nil {
		select {
		case b.relayQ <- msg:
			delivered = true
		default:
			b.log.WithField("topic", topic).Warn("relay queue full, delivering locally")
		}
	}
	if !delivered {
		b.registry.Broadcast(topic, payload)
	}

	if b.forwardQ != nil {
		select {
		case b.forwardQ <- msg:
		default:
			forwardFailures.Inc()
			b.log.WithField("topic", topic).Warn("forward queue full, event not forwarded")
		}
	}
}

// Run drives the relay and forwarder until ctx is done. It is a no-op
// (returning at ctx end) when neither is configured.
func (b *Bus) Run(ctx context.Context) {
	if b.relay != nil {
		go b.subscribeLoop(ctx)
		go b.publishLoop(ctx)
	}
	if b.forwarder != nil {
		go b.forwardLoop(ctx)
	}
	<-ctx.Done()
	if b.forwarder != nil {
		if err := b.forwarder.Close(); err != nil {
			b.log.WithError(err).Warn("close forwarder")
		}
	}
}

func (b *Bus) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.relayQ:
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := b.relay.Publish(pctx, msg)
			cancel()
			if err != nil {
				b.log.WithError(err).WithField("topic", msg.Topic).Warn("relay publish failed, delivering locally")
				b.registry.Broadcast(msg.Topic, msg.Payload)
			}
		}
	}
}

func (b *Bus) subscribeLoop(ctx context.Context) {
	for {
		err := b.relay.Subscribe(ctx, func(m RelayMessage) {
			b.registry.Broadcast(m.Topic, m.Payload)
		})
		if ctx.Err() != nil {
			return
		}
		b.log.WithError(err).Warn("relay subscription lost, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (b *Bus) forwardLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.forwardQ:
			fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := b.forwarder.Forward(fctx, msg)
			cancel()
			if err != nil {
				forwardFailures.Inc()
				b.log.WithError(err).WithFields(map[string]any{"topic": msg.Topic, "event": msg.Event}).Warn("event forward failed")
			}
		}
	}
}
