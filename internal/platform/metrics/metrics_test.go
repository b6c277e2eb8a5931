package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCheckoutMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.Observe("confirm", "placed", time.Now())
	m.Observe("confirm", "placed", time.Now())
	m.Observe("preview", "no_eligible_store", time.Now())
	m.SetPending(3)
	m.HTTPRequest("preview", "200")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("confirm", "placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("preview", "no_eligible_store")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PendingDiscrepancies))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("preview", "200")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quickcommerce_reconcile_pending_discrepancies 3")
}

func TestCheckoutMetrics_NilIsNoop(t *testing.T) {
	var m *CheckoutMetrics
	assert.NotPanics(t, func() {
		m.Observe("confirm", "placed", time.Now())
		m.SetPending(1)
		m.HTTPRequest("x", "200")
	})
}
