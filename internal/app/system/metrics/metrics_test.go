package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCollectors(reg, func() int { return 3 })

	NotificationsCreated.WithLabelValues("system").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
		if f.GetName() == "impacthub_session_engines_active" {
			if got := f.GetMetric()[0].GetGauge().GetValue(); got != 3 {
				t.Errorf("session_engines_active: got %v, want 3", got)
			}
		}
	}
	for _, name := range []string{"impacthub_notifications_created_total", "impacthub_session_engines_active"} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}
