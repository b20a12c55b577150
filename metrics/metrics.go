// Package metrics exposes the comms core's internal Prometheus
// instrumentation, following the teacher's use of
// github.com/prometheus/client_golang (wired via grpc-ecosystem's
// go-grpc-prometheus elsewhere in lnd) for subsystem-level gauges and
// counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// QueueDepth tracks the current send-queue depth of a link.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "racecomms",
		Name:      "queue_depth",
		Help:      "Current number of packages queued on a link's send queue.",
	}, []string{"link_id"})

	// PackagesTotal counts packages by terminal result.
	PackagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "racecomms",
		Name:      "packages_total",
		Help:      "Packages processed by result: sent, failed_generic, failed_timeout, dropped, corrupted.",
	}, []string{"result"})

	// LinksActive tracks the number of live links per channel and type.
	LinksActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "racecomms",
		Name:      "links_active",
		Help:      "Number of currently active links.",
	}, []string{"channel_gid", "link_type"})

	// ConnectionsActive tracks the number of live connections per link.
	ConnectionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "racecomms",
		Name:      "connections_active",
		Help:      "Number of currently open connections on a link.",
	}, []string{"link_id"})

	// WhiteboardPollLatency measures whiteboard GET round-trip time.
	WhiteboardPollLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "racecomms",
		Name:      "whiteboard_poll_latency_seconds",
		Help:      "Round-trip latency of whiteboard poll GET requests.",
		Buckets:   prometheus.DefBuckets,
	})
)

// MustRegister registers every collector in this package with reg. Callers
// (typically the harness binary) decide whether that's the default registry
// or a private one built for tests.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(QueueDepth, PackagesTotal, LinksActive, ConnectionsActive, WhiteboardPollLatency)
}
