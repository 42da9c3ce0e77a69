package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OUTCOME_CREATED      = "created"
	OUTCOME_BLOCKED      = "blocked"
	OUTCOME_CONFIG_ERROR = "config_error"
	OUTCOME_API_ERROR    = "api_error"
	OUTCOME_TIMEOUT      = "timeout"
	OUTCOME_POD_FAILED   = "pod_failed"
)

var (
	JobStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobpanel_job_starts_total",
		Help: "Start requests by outcome",
	}, []string{"outcome"})

	JobCancels = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobpanel_job_cancels_total",
		Help: "Cancel and delete requests that issued a delete to the cluster",
	})

	LogLinesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobpanel_log_lines_broadcast_total",
		Help: "Pod log lines fanned out to clients",
	})

	LogStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobpanel_log_streams_active",
		Help: "Log stream broadcasters currently running",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobpanel_connected_clients",
		Help: "Realtime clients currently connected",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobpanel_events_dropped_total",
		Help: "Events not delivered to a client because its send buffer was full",
	})
)
