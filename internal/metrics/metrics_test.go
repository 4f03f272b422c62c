package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.Decision("")
	r.ChainRead("ok", 0.1)
	r.StaleFallback()
	r.MintRun("succeeded", "")
	r.MintRecorded()
}

func TestHandlerExposesCounters(t *testing.T) {
	r := NewRegistry()
	r.Decision("")
	r.Decision("sold-out")
	r.MintRun("failed", "all-candidates-reverted")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`kovnica_eligibility_decisions_total{outcome="allowed"} 1`,
		`kovnica_eligibility_decisions_total{outcome="sold-out"} 1`,
		`kovnica_mint_runs_total{reason="all-candidates-reverted",state="failed"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestEveryMetricHasHelp(t *testing.T) {
	r := NewRegistry()
	r.ChainRead("ok", 0.1)
	r.MintRecorded()
	r.Decision("")
	r.StaleFallback()
	r.MintRun("succeeded", "")

	families, err := r.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 6 {
		t.Errorf("expected 6 metric families, got %d", len(families))
	}
	for _, f := range families {
		if f.GetHelp() == "" {
			t.Errorf("metric %s has no help text", f.GetName())
		}
	}
}
