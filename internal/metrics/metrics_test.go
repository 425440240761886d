package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorExposesCounters(t *testing.T) {
	c := NewCollector()
	c.MutationApplied("deposit", 5*time.Millisecond)
	c.MutationApplied("deposit", 7*time.Millisecond)
	c.MutationFailed("validation")
	c.ConflictRetry()
	c.Intent("recorded")
	c.Dispatch("sent")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`wallet_mutations_applied_total{category="deposit"} 2`,
		`wallet_mutations_failed_total{reason="validation"} 1`,
		`wallet_mutation_conflict_retries_total 1`,
		`wallet_intents_total{outcome="recorded"} 1`,
		`wallet_notification_dispatches_total{status="sent"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if !strings.Contains(body, "wallet_mutation_duration_seconds_count 2") {
		t.Error("histogram count missing")
	}
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.MutationApplied("deposit", time.Millisecond)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), `category="deposit"`) {
		t.Error("registries should be independent")
	}
}
