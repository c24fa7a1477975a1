package realtime

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSSE(&buf, Frame{Event: "rides", Data: []byte(`{"event":"created"}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "event: rides\ndata: {\"event\":\"created\"}\n\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestServeSSEStreamsHelloTickAndEvents(t *testing.T) {
	reg := NewRegistry(8, nil)
	bus := NewBus(reg, nil)
	registered := make(chan *Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn := reg.Register(ParseTopics(r.URL.Query().Get("topics")))
		defer reg.Unregister(conn)
		registered <- conn
		_ = ServeSSE(r.Context(), w, conn, 30*time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?topics=rides", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("unexpected cache control %q", cc)
	}

	select {
	case <-registered:
	case <-ctx.Done():
		t.Fatalf("handler never registered")
	}
	bus.Emit(TopicRides, "created", map[string]any{"id": "r1"})

	sc := bufio.NewScanner(resp.Body)
	seen := map[string]bool{}
	for !(seen["hello"] && seen["tick"] && seen["rides"]) && sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			seen[name] = true
			if !sc.Scan() || !strings.HasPrefix(sc.Text(), "data: ") {
				t.Fatalf("event %q without data line", name)
			}
			if name == "rides" && !strings.Contains(sc.Text(), `"event":"created"`) {
				t.Fatalf("unexpected rides payload %q", sc.Text())
			}
		}
	}
	for _, name := range []string{"hello", "tick", "rides"} {
		if !seen[name] {
			t.Fatalf("never saw %q frame", name)
		}
	}
}
