package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	pollFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amon_relay_poll_failures_total",
			Help: "Manifest polls against the master that failed.",
		},
	)
	manifestUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amon_relay_manifest_updates_total",
			Help: "Manifest mirrors rewritten because the master's checksum changed.",
		},
	)
	eventsForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amon_relay_events_forwarded_total",
			Help: "Events delivered to the master, directly or from the spool.",
		},
	)
	eventsSpooled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amon_relay_events_spooled_total",
			Help: "Events parked in the spool after delivery retries ran out.",
		},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amon_relay_events_dropped_total",
			Help: "Events lost for good, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		pollFailures,
		manifestUpdates,
		eventsForwarded,
		eventsSpooled,
		eventsDropped,
	)
}
