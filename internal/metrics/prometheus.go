package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for UpdatesTotal and friends
const (
	PolicyOverwrite   = "overwrite"
	PolicyNoOverwrite = "no_overwrite"
	PolicyRetract     = "retract"

	ResultOK = "ok"

	ReasonTransfer = "transfer"
	ReasonExplicit = "explicit"
)

// Metrics holds all Prometheus metrics for one context map and the replay
// pipeline that drives it
type Metrics struct {
	// Index operation metrics
	UpdatesTotal   *prometheus.CounterVec // labels: policy, result
	UpdateDuration prometheus.Histogram
	ReadsTotal     *prometheus.CounterVec // labels: state
	ReadDuration   prometheus.Histogram

	// Index state metrics
	TombstonesTotal     *prometheus.CounterVec // labels: reason
	ReleasesTotal       prometheus.Counter
	KeysTotal           prometheus.Gauge
	OwnedValuesTotal    prometheus.Gauge
	HistoryEntriesTotal prometheus.Gauge

	// Replay metrics
	ReplayScriptsTotal *prometheus.CounterVec // labels: result
	ReplayStepsTotal   *prometheus.CounterVec // labels: op, result
	ReplayDuration     prometheus.Histogram
}

// NewMetrics creates all metrics for the index named index and registers
// them with reg. Several indexes may share one registerer as long as their
// names differ.
func NewMetrics(index string, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"index": index}
	factory := promauto.With(reg)

	return &Metrics{
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "updates_total",
			Help:        "Total number of update requests by policy and result",
			ConstLabels: labels,
		}, []string{"policy", "result"}),
		UpdateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "update_duration_seconds",
			Help:        "Histogram of update durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-7, 4, 10), // 100ns to ~26ms
		}),
		ReadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "reads_total",
			Help:        "Total number of point-in-time reads by resulting state",
			ConstLabels: labels,
		}, []string{"state"}),
		ReadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "read_duration_seconds",
			Help:        "Histogram of read durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),

		TombstonesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "tombstones_total",
			Help:        "Total number of tombstones appended by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		ReleasesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "releases_total",
			Help:        "Total number of values released because their owner was rebound",
			ConstLabels: labels,
		}),
		KeysTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "keys",
			Help:        "Number of keys with a history",
			ConstLabels: labels,
		}),
		OwnedValuesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "owned_values",
			Help:        "Number of values with a live owner",
			ConstLabels: labels,
		}),
		HistoryEntriesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "contextmap",
			Subsystem:   "index",
			Name:        "history_entries",
			Help:        "Number of entries across all key histories",
			ConstLabels: labels,
		}),

		ReplayScriptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "contextmap",
			Subsystem:   "replay",
			Name:        "scripts_total",
			Help:        "Total number of replayed scripts by result",
			ConstLabels: labels,
		}, []string{"result"}),
		ReplayStepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "contextmap",
			Subsystem:   "replay",
			Name:        "steps_total",
			Help:        "Total number of replayed steps by operation and result",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		ReplayDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "contextmap",
			Subsystem:   "replay",
			Name:        "script_duration_seconds",
			Help:        "Histogram of script replay durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

// RecordUpdate records the outcome of an update request
func (m *Metrics) RecordUpdate(policy, result string, seconds float64) {
	m.UpdatesTotal.WithLabelValues(policy, result).Inc()
	m.UpdateDuration.Observe(seconds)
}

// RecordRead records a read and the state it resolved to
func (m *Metrics) RecordRead(state string, seconds float64) {
	m.ReadsTotal.WithLabelValues(state).Inc()
	m.ReadDuration.Observe(seconds)
}

// RecordTombstone records a tombstone appended to some history
func (m *Metrics) RecordTombstone(reason string) {
	m.TombstonesTotal.WithLabelValues(reason).Inc()
}

// UpdateIndexStats updates the index state gauges
func (m *Metrics) UpdateIndexStats(keys, ownedValues, historyEntries int) {
	m.KeysTotal.Set(float64(keys))
	m.OwnedValuesTotal.Set(float64(ownedValues))
	m.HistoryEntriesTotal.Set(float64(historyEntries))
}

// RecordReplayStep records one replayed step
func (m *Metrics) RecordReplayStep(op, result string) {
	m.ReplayStepsTotal.WithLabelValues(op, result).Inc()
}

// RecordReplayScript records a finished script replay
func (m *Metrics) RecordReplayScript(passed bool, seconds float64) {
	result := "passed"
	if !passed {
		result = "failed"
	}
	m.ReplayScriptsTotal.WithLabelValues(result).Inc()
	m.ReplayDuration.Observe(seconds)
}
