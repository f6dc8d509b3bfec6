package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	m := New()
	m.SessionStarted("intro")
	m.Answered(true)
	m.Answered(false)
	m.Answered(false)
	m.TimedOut()
	m.WriteFailed("points")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsStarted.WithLabelValues("intro")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Answers.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Timeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailures.WithLabelValues("points")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionStarted("intro")
	m.Answered(true)
	m.TimedOut()
	m.WriteFailed("attempt")
}
