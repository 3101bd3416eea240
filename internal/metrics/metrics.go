package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	readingsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "htn_bp_readings_total",
			Help: "Total number of blood pressure readings recorded, by classification",
		},
		[]string{"category"},
	)

	sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "htn_session_transitions_total",
			Help: "Total number of emergency workflow transitions",
		},
		[]string{"transition"},
	)

	timersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "htn_timers_created_total",
			Help: "Total number of clinical timers created",
		},
		[]string{"type"},
	)

	timersExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "htn_timers_expired_total",
			Help: "Total number of clinical timers observed past their deadline",
		},
		[]string{"type"},
	)

	notificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "htn_notifications_total",
			Help: "Total number of notification requests handled, by priority and outcome",
		},
		[]string{"priority", "outcome"},
	)

	integrityWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "htn_data_integrity_warnings_total",
			Help: "Total number of data integrity warnings observed",
		},
		[]string{"kind"},
	)

	pushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "htn_push_deliveries_total",
			Help: "Total number of web push deliveries, by status",
		},
		[]string{"status"},
	)

	requestsThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "htn_http_throttled_total",
			Help: "Total number of API requests rejected by the rate limiter",
		},
		[]string{"caller"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordReading counts a classified reading.
func RecordReading(category string) {
	readingsRecorded.WithLabelValues(category).Inc()
}

// RecordTransition counts a workflow transition.
func RecordTransition(transition string) {
	sessionTransitions.WithLabelValues(transition).Inc()
}

// RecordTimerCreated counts a new timer.
func RecordTimerCreated(timerType string) {
	timersCreated.WithLabelValues(timerType).Inc()
}

// RecordTimerExpired counts a first observation of an expired timer.
func RecordTimerExpired(timerType string) {
	timersExpired.WithLabelValues(timerType).Inc()
}

// RecordNotification counts a handled notification request.
func RecordNotification(priority, outcome string) {
	notificationsDispatched.WithLabelValues(priority, outcome).Inc()
}

// RecordIntegrityWarning counts a data integrity warning.
func RecordIntegrityWarning(kind string) {
	integrityWarnings.WithLabelValues(kind).Inc()
}

// RecordPushDelivery counts a web push attempt.
func RecordPushDelivery(status string) {
	pushDeliveries.WithLabelValues(status).Inc()
}

// RecordThrottled counts a request rejected by the rate limiter. caller is "user" or "ip".
func RecordThrottled(caller string) {
	requestsThrottled.WithLabelValues(caller).Inc()
}
