package goMFA

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricMFAFailure)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricMFAFailure); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}
	// Only the verification latency carries a histogram.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricVerifyLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := m.Snapshot().Histograms[MetricLoginSuccess]; ok {
		t.Fatal("unexpected histogram for a counter metric")
	}
}

func TestMetricsFollowVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	acc := env.addAccount("metered@example.com", RoleMerchant, nil)
	raw := env.enrollTOTP(acc.ID)
	ctx := context.Background()

	ch := env.challenge("metered@example.com")
	_, _ = env.engine.Verify(ctx, ch.Token, TOTPAttempt{Code: "000000"})
	if _, err := env.engine.Verify(ctx, ch.Token, TOTPAttempt{Code: env.totpCode(raw)}); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricLoginSuccess:    1,
		MetricChallengeIssued: 1,
		MetricMFAFailure:      1,
		MetricMFASuccess:      1,
		MetricTOTPFailure:     1,
		MetricTOTPSuccess:     1,
		MetricSessionCreated:  1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}

	var observed uint64
	for _, n := range snap.Histograms[MetricVerifyLatency] {
		observed += n
	}
	if observed != 2 {
		t.Fatalf("expected 2 latency observations, got %d", observed)
	}
}

func TestMetricsLatencySumAndZeroValue(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricVerifyLatency, 3*time.Millisecond)
	m.Observe(MetricVerifyLatency, 7*time.Millisecond)
	if got := m.Snapshot().VerifyLatencySum; got != 10*time.Millisecond {
		t.Fatalf("expected 10ms sum, got %v", got)
	}

	var zero Metrics
	zero.Inc(MetricLoginSuccess)
	zero.Observe(MetricVerifyLatency, time.Second)
	if zero.Value(MetricLoginSuccess) != 0 || len(zero.Snapshot().Counters) != 0 {
		t.Fatal("zero Metrics must not record")
	}
}
