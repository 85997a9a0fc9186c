package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	m := NewPrometheus("Created", "Running", "Stopped")

	m.ConnectionAccepted()
	m.ConnectionAccepted()
	m.ConnectionDropped(DROP_OVERLOADED)
	m.AcceptError(true)
	m.ConnectionProcessed(RESULT_OK, 20*time.Millisecond)
	m.ConnectionProcessed(RESULT_PANIC, time.Millisecond)
	m.SetBusyWorkers(3)
	m.SetQueueDepth(7)
	m.SetState("Created")
	m.SetState("Running")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.accepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues(DROP_OVERLOADED)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.acceptErrors.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processed.WithLabelValues(RESULT_PANIC)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.busyWorkers))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("Created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("Running")))
}

func TestPrometheusRegistriesAreIndependent(t *testing.T) {
	// 같은 프로세스에서 두 번 만들어도 중복 등록 panic이 없어야 한다.
	first, second := NewPrometheus(), NewPrometheus()

	first.ConnectionAccepted()

	assert.Equal(t, 1.0, testutil.ToFloat64(first.accepted))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.accepted))
}

func TestPrometheusHandler(t *testing.T) {
	m := NewPrometheus()
	m.ConnectionAccepted()

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "conn_server_connections_accepted_total 1")
}
