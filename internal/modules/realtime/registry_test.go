package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func nextFrame(t *testing.T, c *Conn) Frame {
	t.Helper()
	select {
	case f := <-c.Frames():
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame for conn %s", c.ID)
	}
	return Frame{}
}

func expectNoFrame(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case f := <-c.Frames():
		t.Fatalf("unexpected frame %q for conn %s", f.Event, c.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRegisterQueuesHelloFirst(t *testing.T) {
	reg := NewRegistry(4, nil)
	c := reg.Register([]Topic{TopicRides})
	defer reg.Unregister(c)

	f := nextFrame(t, c)
	if f.Event != "hello" {
		t.Fatalf("expected hello, got %q", f.Event)
	}
	var h struct {
		OK     bool     `json:"ok"`
		ID     string   `json:"id"`
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal(f.Data, &h); err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if !h.OK || h.ID != c.ID || len(h.Topics) != 1 || h.Topics[0] != "rides" {
		t.Fatalf("unexpected hello: %+v", h)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", reg.Len())
	}
}

func TestRegisterWithoutTopicsSubscribesAll(t *testing.T) {
	reg := NewRegistry(4, nil)
	c := reg.Register(nil)
	defer reg.Unregister(c)
	if len(c.Topics()) != len(AllTopics) {
		t.Fatalf("expected all topics, got %v", c.Topics())
	}
}

func TestBroadcastFanOut(t *testing.T) {
	reg := NewRegistry(4, nil)
	a := reg.Register([]Topic{TopicRides})
	b := reg.Register([]Topic{TopicRides, TopicDrivers})
	c := reg.Register([]Topic{TopicRates})
	for _, conn := range []*Conn{a, b, c} {
		nextFrame(t, conn)
	}

	if n := reg.Broadcast(TopicRides, []byte(`{"event":"created"}`)); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for _, conn := range []*Conn{a, b} {
		f := nextFrame(t, conn)
		if f.Event != "rides" || string(f.Data) != `{"event":"created"}` {
			t.Fatalf("unexpected frame %q %s", f.Event, f.Data)
		}
	}
	expectNoFrame(t, c)
}

func TestBroadcastUnknownTopic(t *testing.T) {
	reg := NewRegistry(4, nil)
	c := reg.Register(nil)
	defer reg.Unregister(c)
	nextFrame(t, c)

	if n := reg.Broadcast("weather", []byte(`{}`)); n != 0 {
		t.Fatalf("expected 0 deliveries, got %d", n)
	}
	expectNoFrame(t, c)
}

func TestBroadcastFullQueueDoesNotBlock(t *testing.T) {
	reg := NewRegistry(1, nil)
	c := reg.Register([]Topic{TopicRides})
	defer reg.Unregister(c)

	// hello plus one slot
	if n := reg.Broadcast(TopicRides, []byte(`1`)); n != 1 {
		t.Fatalf("expected first frame accepted, got %d", n)
	}
	done := make(chan int)
	go func() { done <- reg.Broadcast(TopicRides, []byte(`2`)) }()
	select {
	case n := <-done:
		if n != 0 {
			t.Fatalf("expected frame to be dropped, got %d deliveries", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a full queue")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry(4, nil)
	c := reg.Register([]Topic{TopicRides})
	nextFrame(t, c)

	reg.Unregister(c)
	reg.Unregister(c)

	select {
	case <-c.Closed():
	default:
		t.Fatalf("expected closed channel after unregister")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	if n := reg.Broadcast(TopicRides, []byte(`{}`)); n != 0 {
		t.Fatalf("expected no deliveries after unregister, got %d", n)
	}
}

func TestRegistryConcurrentRegisterBroadcast(t *testing.T) {
	reg := NewRegistry(4, nil)
	bus := NewBus(reg, nil)

	// A long-lived subscriber drains its queue while churn happens around it.
	watcher := reg.Register([]Topic{TopicRides})
	var seen atomic.Int64
	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case f := <-watcher.Frames():
				if f.Event == "rides" {
					seen.Add(1)
				}
			case <-stop:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c := reg.Register([]Topic{TopicRides, TopicDrivers})
				reg.Unregister(c)
				reg.Unregister(c)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Broadcast(TopicRides, []byte(`{"event":"created"}`))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Emit(TopicDrivers, "updated", map[string]int{"n": j})
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-drained
	reg.Unregister(watcher)

	if reg.Len() != 0 {
		t.Fatalf("expected no connections left, got %d", reg.Len())
	}
	if seen.Load() == 0 {
		t.Fatalf("watcher received no rides frames")
	}
}
