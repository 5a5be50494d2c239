package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DiagnosisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agribeta_diagnosis_total",
		Help: "Diagnosis requests by outcome",
	}, []string{"outcome"}) // "ok", "limit_exceeded", "model_error", "unavailable", "error"

	DiagnosisModelSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agribeta_diagnosis_model_seconds",
		Help:    "Latency of the diagnosis model endpoint",
		Buckets: prometheus.DefBuckets,
	})

	UsageRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agribeta_usage_rejected_total",
		Help: "Metered actions rejected by the usage limit",
	}, []string{"action"})

	BookingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agribeta_booking_total",
		Help: "Consultation booking attempts by outcome",
	}, []string{"outcome"}) // "ok", "slot_taken", "out_of_hours", "daily_cap", "date_unavailable", "limit_exceeded", "error"

	ConsultationTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agribeta_consultation_transitions_total",
		Help: "Consultation status changes",
	}, []string{"to"})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agribeta_cache_lookups_total",
		Help: "Directory cache lookups",
	}, []string{"result"}) // "hit", "miss", "error"

	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agribeta_outbox_published_total",
		Help: "Outbox events handed to the event transport",
	}, []string{"event_type"})

	OutboxFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agribeta_outbox_failures_total",
		Help: "Outbox batches that failed to publish",
	})
)
