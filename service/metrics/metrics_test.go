package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSellOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSellOutcome("done", "success")
	m.RecordSellOutcome("done", "success")
	m.RecordSellOutcome("confirming_payment", "payment not confirmed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sellSubmissionsTotal.WithLabelValues("done", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sellSubmissionsTotal.WithLabelValues("confirming_payment", "payment not confirmed")))
}

func TestRecordPriceFetch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPriceFetch(0.1, 1.25, nil)
	m.RecordPriceFetch(0.2, 99, errors.New("boom"))

	assert.Equal(t, 1.25, testutil.ToFloat64(m.wldPriceUSD), "failed fetch must not overwrite the gauge")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.priceFetchesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.priceFetchesTotal.WithLabelValues("error")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	h := HTTPMetricsMiddleware(m, "/api/orders")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/orders", "POST", "2xx")))
}

func TestHTTPMetricsMiddleware_Flusher(t *testing.T) {
	var flushed bool
	h := HTTPMetricsMiddleware(nil, "/api/stream/price")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		f.Flush()
		flushed = true
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stream/price", nil))

	assert.True(t, flushed)
	assert.True(t, w.Flushed)
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(204))
	assert.Equal(t, "3xx", statusCodeToString(302))
	assert.Equal(t, "4xx", statusCodeToString(409))
	assert.Equal(t, "5xx", statusCodeToString(502))
	assert.Equal(t, "unknown", statusCodeToString(0))
}
