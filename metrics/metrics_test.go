package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	OrdersSubmitted.WithLabelValues("TESTUSDT", "entry").Inc()
	if got := testutil.ToFloat64(OrdersSubmitted.WithLabelValues("TESTUSDT", "entry")); got != 1 {
		t.Fatalf("expected 1 submitted order, got %v", got)
	}
	PositionsOpen.WithLabelValues("TESTUSDT").Set(1)
	PositionsOpen.WithLabelValues("TESTUSDT").Set(0)
	if got := testutil.ToFloat64(PositionsOpen.WithLabelValues("TESTUSDT")); got != 0 {
		t.Fatalf("expected gauge back at 0, got %v", got)
	}
}
