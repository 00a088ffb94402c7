package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	messages []string
}

func (r *recordingLogger) Errorf(format string, args ...any) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	return string(body)
}

func TestPrometheusManager_RecordsMetrics(t *testing.T) {
	logger := &recordingLogger{}

	m, handler, err := NewPrometheusManager("zdb-test", prometheus.NewRegistry(), logger)
	require.NoError(t, err)

	m.NewCounter("app_zdb_errors", "number of failed queries")
	m.NewHistogram("app_sql_stats", "response time of sql calls in milliseconds", 1, 10, 100)

	m.IncrementCounter(context.Background(), "app_zdb_errors", "kind", "execute_error")
	m.RecordHistogram(context.Background(), "app_sql_stats", 4, "type", "SELECT")

	body := scrape(t, handler)

	assert.Contains(t, body, "app_zdb_errors")
	assert.Contains(t, body, `kind="execute_error"`)
	assert.Contains(t, body, "app_sql_stats")
	assert.Contains(t, body, `type="SELECT"`)
	assert.Empty(t, logger.messages)
}

func TestManager_Errors(t *testing.T) {
	logger := &recordingLogger{}

	m, _, err := NewPrometheusManager("zdb-test", prometheus.NewRegistry(), logger)
	require.NoError(t, err)

	m.NewCounter("dup", "first")
	m.NewCounter("dup", "second")
	m.IncrementCounter(context.Background(), "missing")
	m.IncrementCounter(context.Background(), "dup", "odd")
	m.RecordHistogram(context.Background(), "missing", 1)

	require.Len(t, logger.messages, 4)
	assert.Contains(t, logger.messages[0], errMetricExists.Error())
	assert.Contains(t, logger.messages[1], errMetricNotFound.Error())
	assert.Contains(t, logger.messages[2], errOddLabels.Error())
	assert.Contains(t, logger.messages[3], errMetricNotFound.Error())
}

func TestServer_ServesMetrics(t *testing.T) {
	m, handler, err := NewPrometheusManager("zdb-test", prometheus.NewRegistry(), &recordingLogger{})
	require.NoError(t, err)

	m.NewCounter("app_zdb_errors", "number of failed queries")
	m.IncrementCounter(context.Background(), "app_zdb_errors", "kind", "unknown_handler")

	srv, err := NewServer("127.0.0.1:0", handler)
	require.NoError(t, err)

	logger := &recordingLogger{}
	done := make(chan struct{})

	go func() {
		srv.Run(logger)
		close(done)
	}()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Contains(t, string(body), "app_zdb_errors")
	assert.Contains(t, string(body), `kind="unknown_handler"`)

	require.NoError(t, srv.Shutdown(context.Background()))
	<-done

	assert.Empty(t, logger.messages)
}
