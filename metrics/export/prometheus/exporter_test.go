package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
)

type fakeSource struct {
	snapshot goMFA.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goMFA.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                   { return f.dropped }

func scrape(t *testing.T, exp *PrometheusExporter) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return rec.Code, rec.Header().Get("Content-Type"), string(body)
}

func TestScrapeEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goMFA.MetricsSnapshot{
			Counters:   map[goMFA.MetricID]uint64{},
			Histograms: map[goMFA.MetricID][]uint64{},
		},
	})

	code, _, body := scrape(t, exp)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if strings.Contains(body, "gomfa_") {
		t.Fatalf("expected no gomfa metrics, got:\n%s", body)
	}
}

func TestScrapeIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goMFA.MetricsSnapshot{
			Counters: map[goMFA.MetricID]uint64{
				goMFA.MetricLoginSuccess: 7,
				goMFA.MetricTOTPReplay:   1,
			},
			Histograms: map[goMFA.MetricID][]uint64{
				goMFA.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			VerifyLatencySum: 1500 * time.Millisecond,
		},
		dropped: 2,
	})

	_, contentType, body := scrape(t, exp)
	if !strings.Contains(contentType, "text/plain") {
		t.Fatalf("unexpected content type %q", contentType)
	}
	for _, want := range []string{
		"gomfa_login_success_total 7",
		"gomfa_totp_replay_total 1",
		"gomfa_mfa_failure_total 0",
		`gomfa_verify_latency_seconds_bucket{le="0.005"} 1`,
		`gomfa_verify_latency_seconds_bucket{le="0.5"} 28`,
		`gomfa_verify_latency_seconds_bucket{le="+Inf"} 36`,
		"gomfa_verify_latency_seconds_count 36",
		"gomfa_verify_latency_seconds_sum 1.5",
		"gomfa_audit_dropped_total 2",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, body)
		}
	}
}

func TestRegistryAcceptsExtraCollectors(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{})
	if exp.Registry() == nil {
		t.Fatal("expected registry")
	}
	if _, err := exp.Registry().Gather(); err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
}
