// Package observability holds the prometheus collectors for roster changes.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Rejection reasons used as the `reason` label.
const (
	ReasonActivityNotFound    = "activity_not_found"
	ReasonParticipantNotFound = "participant_not_found"
	ReasonAlreadySignedUp     = "already_signed_up"
	ReasonMissingParameter    = "missing_parameter"
	ReasonOther               = "other"
)

var (
	participantsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signup_service",
		Subsystem: "registry",
		Name:      "participants",
		Help:      "Current number of participants per activity.",
	}, []string{"activity"})

	capacityGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signup_service",
		Subsystem: "registry",
		Name:      "max_participants",
		Help:      "Advertised capacity per activity.",
	}, []string{"activity"})

	signupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "registry",
		Name:      "signups_total",
		Help:      "Number of successful signups per activity.",
	}, []string{"activity"})

	removalCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "registry",
		Name:      "removals_total",
		Help:      "Number of participants removed per activity.",
	}, []string{"activity"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "registry",
		Name:      "rejected_total",
		Help:      "Number of signup/remove calls rejected, labeled by operation and reason.",
	}, []string{"operation", "reason"})

	overCapacityCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "registry",
		Name:      "over_capacity_signups_total",
		Help:      "Signups accepted while the roster was already at or above max_participants.",
	}, []string{"activity"})
)

func init() {
	prometheus.MustRegister(participantsGauge, capacityGauge, signupCounter, removalCounter, rejectedCounter, overCapacityCounter)
}

// RecordRoster sets the participant and capacity gauges for an activity.
func RecordRoster(activity string, participants, capacity int) {
	participantsGauge.WithLabelValues(activity).Set(float64(participants))
	capacityGauge.WithLabelValues(activity).Set(float64(capacity))
}

// RecordSignup counts a successful signup.
func RecordSignup(activity string) {
	signupCounter.WithLabelValues(activity).Inc()
}

// RecordRemoval counts a successful removal.
func RecordRemoval(activity string) {
	removalCounter.WithLabelValues(activity).Inc()
}

// RecordRejected counts a failed signup or remove call.
func RecordRejected(operation, reason string) {
	rejectedCounter.WithLabelValues(operation, reason).Inc()
}

// RecordOverCapacity counts a signup that went past the advertised capacity.
func RecordOverCapacity(activity string) {
	overCapacityCounter.WithLabelValues(activity).Inc()
}

// SignupCount returns the signup counter for an activity. Intended for tests.
func SignupCount(activity string) prometheus.Counter {
	return signupCounter.WithLabelValues(activity)
}

// RemovalCount returns the removal counter for an activity. Intended for tests.
func RemovalCount(activity string) prometheus.Counter {
	return removalCounter.WithLabelValues(activity)
}

// RejectedCount returns the rejection counter for an operation and reason. Intended for tests.
func RejectedCount(operation, reason string) prometheus.Counter {
	return rejectedCounter.WithLabelValues(operation, reason)
}

// OverCapacityCount returns the over-capacity counter for an activity. Intended for tests.
func OverCapacityCount(activity string) prometheus.Counter {
	return overCapacityCounter.WithLabelValues(activity)
}

// Participants returns the participants gauge for an activity. Intended for tests.
func Participants(activity string) prometheus.Gauge {
	return participantsGauge.WithLabelValues(activity)
}
