package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.Requests.WithLabelValues("generate").Inc()
	m.Errors.WithLabelValues("timeout").Inc()
	m.Cache.WithLabelValues("tier2", "hit").Inc()
	m.IngressDuration.Observe(120)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "reelscript_requests_total")
	assert.Contains(t, body, "reelscript_errors_total")
	assert.Contains(t, body, `tier="tier2"`)
	assert.Contains(t, body, "reelscript_ingress_duration_ms_bucket")
}

func TestSetBreakerState(t *testing.T) {
	m := New()
	m.SetBreakerState("download", "OPEN")
	m.SetBreakerState("generation", "HALF_OPEN")
	m.SetBreakerState("upload", "CLOSED")

	snap, err := m.JSONSnapshot()
	require.NoError(t, err)
	samples, ok := snap["reelscript_breaker_state"].([]map[string]interface{})
	require.True(t, ok)
	values := map[string]float64{}
	for _, s := range samples {
		values[s["service"].(string)] = s["value"].(float64)
	}
	assert.Equal(t, 2.0, values["download"])
	assert.Equal(t, 1.0, values["generation"])
	assert.Equal(t, 0.0, values["upload"])
}

func TestJSONSnapshotIncludesHistograms(t *testing.T) {
	m := New()
	m.JobDuration.Observe(1500)
	m.JobDuration.Observe(2500)

	snap, err := m.JSONSnapshot()
	require.NoError(t, err)
	samples := snap["reelscript_job_duration_ms"].([]map[string]interface{})
	require.Len(t, samples, 1)
	assert.Equal(t, uint64(2), samples[0]["count"])
	assert.Equal(t, 4000.0, samples[0]["sum"])
}
