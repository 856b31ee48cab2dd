package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusExporter(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	t.Run("RecordTurn", func(t *testing.T) {
		exporter.RecordTurn("search", 100*time.Millisecond, true)
		exporter.RecordTurn("search", 200*time.Millisecond, true)
		exporter.RecordTurn("chat", 150*time.Millisecond, false)
	})

	t.Run("RecordRetrieval", func(t *testing.T) {
		exporter.RecordRetrieval("standard", 50*time.Millisecond)
		exporter.RecordRetrieval("expanded", 120*time.Millisecond)
		exporter.RecordQuality("good")
	})

	t.Run("RecordLLM", func(t *testing.T) {
		exporter.RecordLLMTokens("glm-4-flash", "prompt", 100)
		exporter.RecordLLMTokens("glm-4-flash", "completion", 50)
		exporter.RecordLLMLatency("glm-4-flash", 500*time.Millisecond)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())
	exporter.RecordTurn("search", 100*time.Millisecond, true)
	exporter.RecordQuality("excellent")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "linkmate_agent_turns_total") {
		t.Errorf("missing turn counter in metrics output:\n%s", body)
	}
	if !strings.Contains(body, "linkmate_retrieval_quality_total") {
		t.Errorf("missing quality counter in metrics output")
	}
}
