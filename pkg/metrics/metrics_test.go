package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	ExecutionsFinished.WithLabelValues("SUCCESS").Inc()
	NodeRuns.WithLabelValues("set", "SUCCESS").Inc()

	assert.GreaterOrEqual(t, testutil.ToFloat64(ExecutionsFinished.WithLabelValues("SUCCESS")), float64(1))

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "flowrun_executions_finished_total")
	assert.Contains(t, string(body), `flowrun_node_runs_total{node_type="set",status="SUCCESS"}`)
}
