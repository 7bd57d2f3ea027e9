package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/api/transactions", "201", 0.02)
	RecordHTTPRequest("POST", "/api/transactions", "201", 0.03)
	RecordHTTPRequest("POST", "/api/transactions", "400", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/transactions", "201")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/transactions", "400")))
}

func TestRecordPoints_SplitsBySign(t *testing.T) {
	PointsCreditedTotal.Reset()
	PointsDebitedTotal.Reset()

	RecordPoints("transfer", 25)
	RecordPoints("transfer", -25)
	RecordPoints("transfer", 0)

	assert.Equal(t, float64(25), testutil.ToFloat64(PointsCreditedTotal.WithLabelValues("transfer")))
	assert.Equal(t, float64(25), testutil.ToFloat64(PointsDebitedTotal.WithLabelValues("transfer")))
}

func TestRecordAudit(t *testing.T) {
	AuditRunsTotal.Reset()

	RecordAudit(3, nil)
	assert.Equal(t, float64(3), testutil.ToFloat64(AuditDriftUsers))

	RecordAudit(0, errors.New("db closed"))
	assert.Equal(t, float64(3), testutil.ToFloat64(AuditDriftUsers))
	assert.Equal(t, float64(1), testutil.ToFloat64(AuditRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(AuditRunsTotal.WithLabelValues("error")))
}

func TestRecordSuspicionChange(t *testing.T) {
	SuspicionChangesTotal.Reset()

	RecordSuspicionChange(true)
	RecordSuspicionChange(false)
	RecordSuspicionChange(true)

	assert.Equal(t, float64(2), testutil.ToFloat64(SuspicionChangesTotal.WithLabelValues("flagged")))
	assert.Equal(t, float64(1), testutil.ToFloat64(SuspicionChangesTotal.WithLabelValues("cleared")))
}
