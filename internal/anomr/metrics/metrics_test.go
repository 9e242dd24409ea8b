package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(LinesRead.WithLabelValues("batch"))
	LinesRead.WithLabelValues("batch").Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(LinesRead.WithLabelValues("batch")))

	Anomalies.WithLabelValues("realtime", "high").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(Anomalies.WithLabelValues("realtime", "high")), 1.0)

	LastScore.Set(-0.42)
	assert.Equal(t, -0.42, testutil.ToFloat64(LastScore))
}

func TestHandlerExposesMetrics(t *testing.T) {
	Polls.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "anomr_realtime_polls_total")
}
