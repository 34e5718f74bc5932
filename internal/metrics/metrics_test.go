package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveOperation("purchase", "ok", time.Millisecond)
		m.ObserveConflictRetry("purchase")
		m.ObservePublish("deposit.approved", nil)
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	m.InstrumentHandler(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveOperation("purchase", "ok", time.Millisecond)
	m.ObserveOperation("purchase", "ok", time.Millisecond)
	m.ObserveConflictRetry("purchase")
	m.ObservePublish("deposit.approved", errors.New("boom"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.operations.WithLabelValues("purchase", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.conflictRetries.WithLabelValues("purchase")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.outboxPublished.WithLabelValues("deposit.approved", "error")), 0)
}

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.InstrumentHandler)
	r.Get("/api/packages/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/packages/abc", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/packages/{id}", "204")), 0)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fundledger_http_requests_total"))
}
