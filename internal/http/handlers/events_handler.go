// README: Realtime handlers; SSE and WebSocket subscriptions on the event registry.
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"vitecab/internal/logger"
	"vitecab/internal/modules/realtime"
)

type EventsHandler struct {
	registry  *realtime.Registry
	ws        *realtime.WSServer
	heartbeat time.Duration
	log       *logger.Logger
}

func NewEventsHandler(registry *realtime.Registry, ws *realtime.WSServer, heartbeat time.Duration, log *logger.Logger) *EventsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EventsHandler{registry: registry, ws: ws, heartbeat: heartbeat, log: log}
}

func (h *EventsHandler) SSE(c *gin.Context) {
	conn := h.registry.Register(realtime.ParseTopics(c.Query("topics")))
	defer h.registry.Unregister(conn)

	if err := realtime.ServeSSE(c.Request.Context(), c.Writer, conn, h.heartbeat); err != nil {
		h.log.WithError(err).WithField("conn_id", conn.ID).Debug("sse stream ended")
	}
}

func (h *EventsHandler) WS(c *gin.Context) {
	conn := h.registry.Register(realtime.ParseTopics(c.Query("topics")))
	defer h.registry.Unregister(conn)

	if err := h.ws.Serve(c.Request.Context(), c.Writer, c.Request, conn, h.heartbeat); err != nil {
		h.log.WithError(err).WithField("conn_id", conn.ID).Debug("websocket stream ended")
	}
}
