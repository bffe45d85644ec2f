package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLedgerEntrySplitsIssuedAndRedeemed(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLedgerEntry("earned", 120)
	c.RecordLedgerEntry("redeemed", -50)
	c.RecordLedgerEntry("tier_change", 0)

	if got := testutil.ToFloat64(c.pointsIssued); got != 120 {
		t.Errorf("issued = %v, want 120", got)
	}
	if got := testutil.ToFloat64(c.pointsRedeemed); got != 50 {
		t.Errorf("redeemed = %v, want 50", got)
	}
	if got := testutil.ToFloat64(c.ledgerEntries.WithLabelValues("tier_change")); got != 1 {
		t.Errorf("tier_change entries = %v, want 1", got)
	}
}

func TestRecordSpinAndRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSpin("nothing", true)
	c.RecordSpin("nothing", true)
	c.RecordRedemptionRejected("cogs_cap")
	c.RecordRateLimited("redeem")
	c.RecordBirthdayRun("completed", 3, 1)

	if got := testutil.ToFloat64(c.spins.WithLabelValues("nothing", "true")); got != 2 {
		t.Errorf("downgraded spins = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.redemptionRejected.WithLabelValues("cogs_cap")); got != 1 {
		t.Errorf("cogs rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.birthdayAwarded); got != 3 {
		t.Errorf("birthday awarded = %v, want 3", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRequest("/api/rewards/spin", 200, 15*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "rewards_http_requests_total") {
		t.Error("response should contain rewards_http_requests_total")
	}
}

func TestNopSatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordLedgerEntry("earned", 1)
	r.RecordRequest("/", 200, time.Millisecond)
}
