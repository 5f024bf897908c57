package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "collabdocs"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	VersionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "versions_created_total", Help: "Version snapshots appended to document histories."},
	)
	BroadcastDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "broadcast_delivered_total", Help: "Change events queued for a recipient connection."},
	)
	BroadcastDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "broadcast_dropped_total", Help: "Change events dropped before delivery, by reason."},
		[]string{"reason"},
	)
	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_connections", Help: "Open realtime connections."},
	)
	RealtimeTopics = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_topics", Help: "Documents with at least one joined connection."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(VersionsCreated)
	reg.MustRegister(BroadcastDelivered)
	reg.MustRegister(BroadcastDropped)
	reg.MustRegister(RealtimeConnections)
	reg.MustRegister(RealtimeTopics)
}
