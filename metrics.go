package goMFA

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID indexes one counter (or the single latency histogram) of the
// in-process metrics table.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricChallengeIssued
	MetricSetupRequired
	MetricMFASuccess
	MetricMFAFailure
	MetricMFAAttemptsExceeded
	MetricVerificationLocked
	MetricTOTPSuccess
	MetricTOTPFailure
	MetricTOTPReplay
	MetricEmailOTPIssued
	MetricEmailOTPVerified
	MetricEmailOTPFailed
	MetricEmailDeliveryFailed
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodeRegenerated
	MetricEnrollmentCompleted
	MetricSessionCreated
	MetricLogout
	MetricImpersonationStarted
	MetricImpersonationStopped
	MetricImpersonationDenied
	MetricVerifyLatency
	metricIDCount
)

// verifyLatencyBounds are the inclusive upper bounds of the latency
// buckets. One overflow bucket follows the last bound.
var verifyLatencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(verifyLatencyBounds) + 1

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

type latencyHistogram struct {
	buckets [latencyBucketCount]atomic.Uint64
	sumNs   atomic.Int64
}

func (h *latencyHistogram) observe(d time.Duration) {
	if d < 0 {
		d = 0
	}
	i := sort.Search(len(verifyLatencyBounds), func(i int) bool {
		return d <= verifyLatencyBounds[i]
	})
	h.buckets[i].Add(1)
	h.sumNs.Add(int64(d))
}

// Metrics is the engine's in-process counter table plus the verification
// latency histogram. Safe for concurrent use; the zero value records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counterSlot
	latency       latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histogram slices hold per-bucket (not cumulative) counts.
type MetricsSnapshot struct {
	Counters         map[MetricID]uint64
	Histograms       map[MetricID][]uint64
	VerifyLatencySum time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records a duration. Only MetricVerifyLatency carries a histogram;
// other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricVerifyLatency {
		return
	}
	m.latency.observe(d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return emptySnapshot()
	}

	s := emptySnapshot()
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.counters[id].n.Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.latency.buckets[i].Load()
		}
		s.Histograms[MetricVerifyLatency] = buckets
		s.VerifyLatencySum = time.Duration(m.latency.sumNs.Load())
	}
	return s
}
