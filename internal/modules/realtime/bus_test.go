package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type failingRelay struct{}

func (failingRelay) Publish(context.Context, RelayMessage) error { return errors.New("relay down") }

func (failingRelay) Subscribe(ctx context.Context, _ func(RelayMessage)) error {
	<-ctx.Done()
	return ctx.Err()
}

// loopbackRelay delivers published messages to its own subscriber.
type loopbackRelay struct {
	mu      sync.Mutex
	deliver func(RelayMessage)
	ready   chan struct{}
}

func newLoopbackRelay() *loopbackRelay { return &loopbackRelay{ready: make(chan struct{})} }

func (l *loopbackRelay) Publish(_ context.Context, msg RelayMessage) error {
	l.mu.Lock()
	d := l.deliver
	l.mu.Unlock()
	if d == nil {
		return errors.New("no subscriber")
	}
	d(msg)
	return nil
}

func (l *loopbackRelay) Subscribe(ctx context.Context, deliver func(RelayMessage)) error {
	l.mu.Lock()
	l.deliver = deliver
	l.mu.Unlock()
	close(l.ready)
	<-ctx.Done()
	return ctx.Err()
}

type recordingForwarder struct {
	mu   sync.Mutex
	msgs []RelayMessage
	got  chan struct{}
}

func (r *recordingForwarder) Forward(_ context.Context, msg RelayMessage) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *recordingForwarder) Close() error { return nil }

func decodeEnvelope(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env.Event, env.Data
}

func TestEmitDeliversLocally(t *testing.T) {
	reg := NewRegistry(4, nil)
	bus := NewBus(reg, nil)
	c := reg.Register([]Topic{TopicRides})
	defer reg.Unregister(c)
	nextFrame(t, c)

	bus.Emit(TopicRides, "created", map[string]any{"id": "r1"})

	f := nextFrame(t, c)
	if f.Event != "rides" {
		t.Fatalf("expected rides frame, got %q", f.Event)
	}
	event, data := decodeEnvelope(t, f.Data)
	if event != "created" || data["id"] != "r1" {
		t.Fatalf("unexpected envelope %s %v", event, data)
	}
}

func TestEmitUnknownTopicIsNoop(t *testing.T) {
	reg := NewRegistry(4, nil)
	bus := NewBus(reg, nil)
	c := reg.Register(nil)
	defer reg.Unregister(c)
	nextFrame(t, c)

	bus.Emit("weather", "changed", nil)
	expectNoFrame(t, c)
}

func TestEmitFallsBackWhenRelayFails(t *testing.T) {
	reg := NewRegistry(4, nil)
	bus := NewBus(reg, nil, WithRelay(failingRelay{}, 8))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	c := reg.Register([]Topic{TopicDrivers})
	defer reg.Unregister(c)
	nextFrame(t, c)

	bus.Emit(TopicDrivers, "assigned", map[string]any{"rideId": "r1", "driverId": "d1"})
	f := nextFrame(t, c)
	event, data := decodeEnvelope(t, f.Data)
	if event != "assigned" || data["driverId"] != "d1" {
		t.Fatalf("unexpected envelope %s %v", event, data)
	}
}

func TestEmitThroughRelay(t *testing.T) {
	reg := NewRegistry(4, nil)
	relay := newLoopbackRelay()
	bus := NewBus(reg, nil, WithRelay(relay, 8))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	select {
	case <-relay.ready:
	case <-time.After(time.Second):
		t.Fatalf("relay subscriber never started")
	}

	c := reg.Register([]Topic{TopicRates})
	defer reg.Unregister(c)
	nextFrame(t, c)

	bus.Emit(TopicRates, "fare_distance_updated", map[string]any{"id": 1})
	f := nextFrame(t, c)
	if event, _ := decodeEnvelope(t, f.Data); event != "fare_distance_updated" {
		t.Fatalf("unexpected event %q", event)
	}
	expectNoFrame(t, c)
}

func TestEmitForwardsToBroker(t *testing.T) {
	reg := NewRegistry(4, nil)
	fwd := &recordingForwarder{got: make(chan struct{}, 1)}
	bus := NewBus(reg, nil, WithForwarder(fwd, 8))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Emit(TopicRides, "completed", map[string]any{"id": "r9"})

	select {
	case <-fwd.got:
	case <-time.After(time.Second):
		t.Fatalf("event was not forwarded")
	}
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	if len(fwd.msgs) != 1 || fwd.msgs[0].Topic != TopicRides || fwd.msgs[0].Event != "completed" {
		t.Fatalf("unexpected forwarded messages %+v", fwd.msgs)
	}
}
