package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	rec.Observe(context.Background(), "handle_message", true, 5*time.Millisecond)
	rec.Observe(context.Background(), "handle_message", false, 2*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond) // ignored

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, fam := range families {
		if fam.GetName() != "applycore_engine_operation_results_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			var op, status string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "operation":
					op = lp.GetValue()
				case "status":
					status = lp.GetValue()
				}
			}
			counts[op+"/"+status] = m.GetCounter().GetValue()
		}
	}
	if counts["handle_message/success"] != 1 || counts["handle_message/error"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
}
