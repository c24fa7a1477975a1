// README: Server-Sent Events transport for a registered subscriber connection.
package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

func WriteSSE(w io.Writer, f Frame) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, f.Data)
	return err
}

// ServeSSE streams conn until ctx ends, the connection is unregistered, or a write fails.
// The caller owns Register/Unregister.
func ServeSSE(ctx context.Context, w http.ResponseWriter, conn *Conn, heartbeat time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported by response writer")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		var f Frame
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Closed():
			return nil
		case f = <-conn.Frames():
		case <-ticker.C:
			f = tickFrame
		}
		if err := WriteSSE(w, f); err != nil {
			return err
		}
		flusher.Flush()
	}
}
