package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_TenantCounters(t *testing.T) {
	m := New()

	m.ObserveTenantOp("execute", time.Now(), nil)
	m.ObserveTenantOp("execute", time.Now(), errors.New("boom"))
	m.IncBusyRetry()
	m.IncBusyRetry()
	m.IncProvision("created")
	m.SetPoolOpen(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tenantOps.WithLabelValues("execute", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tenantOps.WithLabelValues("execute", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tenantBusyRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tenantProvisions.WithLabelValues("created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tenantPoolOpen))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.ObserveTenantOp("open", time.Now(), nil)
	m.IncBusyRetry()
	m.IncProvision("existing")
	m.SetPoolOpen(1)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	m.Middleware("/x", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := New()

	h := m.Middleware("/api/client/data/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/client/data/7", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/client/data/{id}", "404")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tower_http_requests_total")
}
