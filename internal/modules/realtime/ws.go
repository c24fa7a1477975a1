// README: WebSocket transport; same frames as SSE, encoded as JSON text messages.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// wsMessage is {"event": "<name>", "data": <json>}.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type WSServer struct {
	upgrader websocket.Upgrader
}

// NewWSServer accepts any origin when allowed is empty or contains "*".
func NewWSServer(allowed []string) *WSServer {
	origins := make(map[string]bool, len(allowed))
	all := len(allowed) == 0
	for _, o := range allowed {
		if o == "*" {
			all = true
		}
		origins[o] = true
	}
	return &WSServer{upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return all || o == "" || origins[o]
		},
	}}
}

// Serve upgrades the request and streams conn until the peer goes away,
// ctx ends, or the connection is unregistered. The caller owns Register/Unregister.
func (s *WSServer) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, conn *Conn, heartbeat time.Duration) error {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// Inbound messages are ignored; the read loop only notices the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		var f Frame
		select {
		case <-ctx.Done():
			return closeWS(ws)
		case <-conn.Closed():
			return closeWS(ws)
		case <-gone:
			return nil
		case f = <-conn.Frames():
		case <-ticker.C:
			f = tickFrame
		}
		b, err := json.Marshal(wsMessage{Event: f.Event, Data: f.Data})
		if err != nil {
			return err
		}
		ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
}

func closeWS(ws *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
