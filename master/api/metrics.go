package api

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amon_master_events_received_total",
			Help: "Events received on the events endpoint, by type.",
		},
		[]string{"type"},
	)
	eventsDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amon_master_events_duplicate_total",
			Help: "Events acknowledged without dispatch because their uuid was already seen.",
		},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amon_master_events_dropped_total",
			Help: "Events dropped before notification, by reason.",
		},
		[]string{"reason"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amon_master_notifications_total",
			Help: "Notification deliveries, by medium and result.",
		},
		[]string{"medium", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		eventsReceived,
		eventsDuplicate,
		eventsDropped,
		notificationsTotal,
	)
}
