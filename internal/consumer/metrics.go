package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sink labels identify where a handler records roster events.
const (
	sinkLog      = "log"
	sinkPostgres = "postgres"
	sinkOther    = "other"
)

// Audit row outcomes for the roster_audit table.
const (
	auditInserted  = "inserted"
	auditDuplicate = "duplicate"
)

var (
	rosterEventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "roster_audit",
		Name:      "events_total",
		Help:      "Roster events committed after handling, by event type and sink.",
	}, []string{"event_type", "sink"})

	rosterFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "roster_audit",
		Name:      "handler_failures_total",
		Help:      "Roster events a sink failed to record, counted once per attempt.",
	}, []string{"event_type", "sink"})

	abandonedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "roster_audit",
		Name:      "abandoned_total",
		Help:      "Roster events left uncommitted after every handler attempt failed.",
	}, []string{"event_type", "sink"})

	malformedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "roster_audit",
		Name:      "malformed_records_total",
		Help:      "Records on a roster topic that could not be decoded and were skipped.",
	}, []string{"topic"})

	activityChangesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "roster_audit",
		Name:      "activity_changes_total",
		Help:      "Audited roster changes per activity and event type.",
	}, []string{"activity", "event_type"})

	auditRowsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signup_service",
		Subsystem: "roster_audit",
		Name:      "rows_total",
		Help:      "Inserts into roster_audit, split into new rows and redelivered duplicates.",
	}, []string{"outcome"})

	lastEventGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "signup_service",
		Subsystem: "roster_audit",
		Name:      "last_event_timestamp_seconds",
		Help:      "Unix timestamp of the most recently committed roster event.",
	})
)

func init() {
	prometheus.MustRegister(
		rosterEventsCounter,
		rosterFailuresCounter,
		abandonedCounter,
		malformedCounter,
		activityChangesCounter,
		auditRowsCounter,
		lastEventGauge,
	)
}

// sinkOf names the destination of handler for metric labels.
func sinkOf(handler Handler) string {
	if named, ok := handler.(interface{ Sink() string }); ok {
		return named.Sink()
	}
	return sinkOther
}

func recordCommitted(msg Message, sink string) {
	rosterEventsCounter.WithLabelValues(msg.EventType, sink).Inc()
	if !msg.Timestamp.IsZero() {
		lastEventGauge.Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerFailure(msg Message, sink string) {
	rosterFailuresCounter.WithLabelValues(msg.EventType, sink).Inc()
}

func recordAbandoned(msg Message, sink string) {
	abandonedCounter.WithLabelValues(msg.EventType, sink).Inc()
}

func recordMalformed(topic string) {
	malformedCounter.WithLabelValues(topic).Inc()
}

func recordActivityChange(activity, eventType string) {
	activityChangesCounter.WithLabelValues(activity, eventType).Inc()
}

func recordAuditRow(inserted bool) {
	outcome := auditDuplicate
	if inserted {
		outcome = auditInserted
	}
	auditRowsCounter.WithLabelValues(outcome).Inc()
}
