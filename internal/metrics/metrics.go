// Package metrics exposes Prometheus counters for identity sync runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/isometry/identity-from-directory/internal/identity"
)

// Lookup results.
const (
	LookupFound     = "found"
	LookupNotFound  = "not_found"
	LookupAmbiguous = "ambiguous"
	LookupError     = "error"
)

// Metrics records sync activity. A nil *Metrics records nothing.
type Metrics struct {
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	rejections     *prometheus.CounterVec
	mutations      *prometheus.CounterVec
}

// New registers the sync metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_sync_directory_lookups_total",
				Help: "Directory lookups by result",
			},
			[]string{"result"}, // found, not_found, ambiguous, error
		),
		lookupDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "identity_sync_directory_lookup_duration_seconds",
				Help:    "Duration of directory lookups",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		rejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_sync_alias_rejections_total",
				Help: "Directory addresses not turned into identities, by reason",
			},
			[]string{"reason"},
		),
		mutations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_sync_identity_changes_total",
				Help: "Identity changes handed to the identity store",
			},
			[]string{"action", "result"}, // result: ok, failed
		),
	}
}

// ObserveLookup records one directory lookup.
func (m *Metrics) ObserveLookup(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
	m.lookupDuration.Observe(d.Seconds())
}

// RejectAlias counts a rejected alias. Its signature fits
// identity.RejectionSink.
func (m *Metrics) RejectAlias(_ string, reason identity.RejectReason) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(string(reason)).Inc()
}

// ObserveMutation counts an applied or failed identity change. Its
// signature fits identity.Applier.Observe.
func (m *Metrics) ObserveMutation(mut identity.Mutation, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.mutations.WithLabelValues(mut.Action.String(), result).Inc()
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
