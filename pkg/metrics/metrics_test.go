package metrics_test

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/MythologIQ/QoreLogic-sub000/pkg/metrics"
)

func TestLedgerAppendsIncrementsByEventKind(t *testing.T) {
	before := testutil.ToFloat64(metrics.LedgerAppends.WithLabelValues("AUDIT_PASS"))
	metrics.LedgerAppends.WithLabelValues("AUDIT_PASS").Inc()
	after := testutil.ToFloat64(metrics.LedgerAppends.WithLabelValues("AUDIT_PASS"))
	assert.Equal(t, before+1, after)
}

func TestQueueDepthGaugeSetsValue(t *testing.T) {
	metrics.QueueDepth.Set(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.QueueDepth))
}

func TestTierOutcomesLabelsByTierAndStatus(t *testing.T) {
	before := testutil.ToFloat64(metrics.TierOutcomes.WithLabelValues("tier1", "pass"))
	metrics.TierOutcomes.WithLabelValues("tier1", "pass").Inc()
	after := testutil.ToFloat64(metrics.TierOutcomes.WithLabelValues("tier1", "pass"))
	assert.Equal(t, before+1, after)
}

func TestHandlerServesPrometheusExposition(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	metrics.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "governance_admission_queue_depth")
}
