package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	m := New()
	m.MessagesSent.Inc()
	m.StreamEvents.WithLabelValues("heartbeat").Add(2)

	if got := testutil.ToFloat64(m.MessagesSent); got != 1 {
		t.Fatalf("messages sent=%v want 1", got)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		"aura_chat_messages_sent_total 1",
		`aura_chat_stream_events_total{type="heartbeat"} 2`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.RateLimitHits.Inc()
	if got := testutil.ToFloat64(b.RateLimitHits); got != 0 {
		t.Fatalf("registries leaked state: %v", got)
	}
}
