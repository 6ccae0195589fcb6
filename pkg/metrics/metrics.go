// Package metrics exposes the Prometheus collectors the out-of-scope
// HTTP server registers on /metrics. The core owns and updates these
// directly; it never serves them itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// QueueDepth tracks the current length of the clip queue.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cliparino_queue_depth",
		Help: "Current number of entries waiting in the clip queue",
	})

	// PlaybackState tracks the current PlaybackEngine state as a gauge with
	// one label value set to 1 and the rest to 0.
	PlaybackState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cliparino_playback_state",
		Help: "Current playback state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	// ObsReconnectAttempts counts every reconnect attempt the
	// ObsHealthSupervisor makes, successful or not.
	ObsReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cliparino_obs_reconnect_attempts_total",
		Help: "Total number of OBS reconnect attempts",
	})

	// ObsDriftDetected counts drift-repair cycles triggered by the
	// periodic drift check.
	ObsDriftDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cliparino_obs_drift_detected_total",
		Help: "Total number of times OBS drift was detected and repaired",
	})

	// HelixRequestDuration tracks Twitch Helix call latency by operation
	// and outcome.
	HelixRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cliparino_helix_request_duration_seconds",
		Help:    "Duration of Twitch Helix API calls in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
	}, []string{"operation", "outcome"})

	// QuarantinedEntries counts queue entries dropped after exhausting
	// playback-start retries.
	QuarantinedEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cliparino_quarantined_entries_total",
		Help: "Total number of queue entries quarantined after repeated failure",
	})

	// ComponentHealth mirrors the status last passed to
	// HealthReporter.Report for each component,
	// 0=Unknown, 1=Healthy, 2=Degraded, 3=Unhealthy.
	ComponentHealth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cliparino_component_health",
		Help: "Current health status per component",
	}, []string{"component"})
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		PlaybackState,
		ObsReconnectAttempts,
		ObsDriftDetected,
		HelixRequestDuration,
		QuarantinedEntries,
		ComponentHealth,
	)
}

// HealthStatusValue maps a ComponentHealth status string to the gauge value.
func HealthStatusValue(status string) float64 {
	switch status {
	case "Healthy":
		return 1
	case "Degraded":
		return 2
	case "Unhealthy":
		return 3
	default:
		return 0
	}
}
