package metrics_test

import (
	"testing"

	"github.com/devrev/pairdb/contextmap/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)

	m.RecordUpdate(metrics.PolicyOverwrite, metrics.ResultOK, 0.001)
	m.RecordUpdate(metrics.PolicyOverwrite, metrics.ResultOK, 0.001)
	m.RecordUpdate(metrics.PolicyNoOverwrite, "value_already_owned", 0.001)
	m.RecordRead("live", 0.0001)
	m.RecordTombstone(metrics.ReasonTransfer)
	m.UpdateIndexStats(3, 2, 7)
	m.RecordReplayStep("get", "passed")
	m.RecordReplayScript(false, 0.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues(metrics.PolicyOverwrite, metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues(metrics.PolicyNoOverwrite, "value_already_owned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadsTotal.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TombstonesTotal.WithLabelValues(metrics.ReasonTransfer)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.KeysTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OwnedValuesTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.HistoryEntriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReplayScriptsTotal.WithLabelValues("failed")))
}

func TestMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NotPanics(t, func() {
		metrics.NewMetrics("a", reg)
		metrics.NewMetrics("b", reg)
	})

	assert.Panics(t, func() {
		metrics.NewMetrics("a", reg)
	})
}
