package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordExchange("link-a", "blocking", "none", 12*time.Millisecond)
	RecordExchange("link-a", "async", "timedout", time.Second)
	RecordResend("link-a")
	SetQueueDepth("link-a", 3)
	RecordTransportBytes("link-a", "tx", 64)
	RecordTransportBytes("link-a", "rx", 0)
}

func TestHandlerExposesExchangeMetrics(t *testing.T) {
	testlog.Start(t)
	RecordExchange("link-b", "blocking", "none", time.Millisecond)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, `edgelink_exchange_completed_total{channel="link-b",kind="blocking",outcome="none"}`) {
		t.Fatalf("exchange counter missing from exposition")
	}
}
