package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	assert.NoError(t, m.Track("negotiations:completion_sweep").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("negotiations:completion_sweep").End(boom), boom)
	m.AddAffected("negotiations:completion_sweep", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("negotiations:completion_sweep", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("negotiations:completion_sweep")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.affected.WithLabelValues("negotiations:completion_sweep")))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddAffected("x", 1)
}
