// Package metrics exposes prometheus counters for the ingest path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
)

type Metrics struct {
	eventsAccepted  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsRejected  *prometheus.CounterVec

	requestsDenied *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		eventsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_events_accepted_total",
			Help: "Total number of events accepted and persisted.",
		}),
		eventsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_events_duplicate_total",
			Help: "Total number of events skipped as idempotent duplicates.",
		}),
		eventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_events_rejected_total",
			Help: "Total number of events rejected, labelled by reason code.",
		}, []string{"reason"}),
		requestsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_requests_denied_total",
			Help: "Total number of ingest requests denied before the pipeline, labelled by cause.",
		}, []string{"cause"}),
	}
}

// RecordIngest counts every per-event outcome of one batch.
func (m *Metrics) RecordIngest(report *eventdomain.Report) {
	if m == nil || report == nil {
		return
	}
	for _, res := range report.Results {
		switch res.Outcome {
		case eventdomain.OutcomeAccepted:
			m.eventsAccepted.Inc()
		case eventdomain.OutcomeDuplicate:
			m.eventsDuplicate.Inc()
		default:
			m.eventsRejected.WithLabelValues(res.Code).Inc()
		}
	}
}

// RecordDenied counts a whole-request denial (unauthorized, forbidden,
// rate-limited) before any event was processed.
func (m *Metrics) RecordDenied(cause string) {
	if m == nil {
		return
	}
	m.requestsDenied.WithLabelValues(cause).Inc()
}
