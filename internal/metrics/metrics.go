package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RemindersEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_enqueued_total",
			Help: "Reminder messages published to the queue by the scanner",
		},
	)
	RemindersHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_handled_total",
			Help: "Reminder messages handled by the dispatcher, by outcome",
		},
		[]string{"outcome"}, // pushed | no_session | poison | requeued
	)
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Currently open push-channel connections",
		},
	)
)

func init() {
	prometheus.MustRegister(RemindersEnqueued)
	prometheus.MustRegister(RemindersHandled)
	prometheus.MustRegister(WSConnections)
}
