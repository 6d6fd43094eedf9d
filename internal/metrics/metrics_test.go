package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.BatchesStarted.Inc()
	r.OperationsTotal.WithLabelValues("ip4_block", "CREATE", "SUCCEEDED").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestServerHealthz(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	srv := NewServer(r, func() bool { return true }, func(id string) (map[string]any, bool) { return nil, false })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerReadyzNotReady(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	srv := NewServer(r, func() bool { return false }, func(id string) (map[string]any, bool) { return nil, false })

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServerSessionNotFound(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	srv := NewServer(r, func() bool { return true }, func(id string) (map[string]any, bool) { return nil, false })

	req := httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
