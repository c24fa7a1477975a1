// README: Prometheus instruments for the subscription registry and event bus.
package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vitecab_realtime_connections",
		Help: "Open subscriber connections.",
	})

	emittedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitecab_realtime_events_total",
		Help: "Events accepted by the bus, by topic.",
	}, []string{"topic"})

	droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitecab_realtime_dropped_frames_total",
		Help: "Frames dropped because a subscriber queue was full.",
	})

	forwardFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitecab_realtime_forward_failures_total",
		Help: "Events the broker forwarder failed to deliver.",
	})
)
