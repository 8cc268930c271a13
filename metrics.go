package inkwell

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginEscalated
	MetricOtpIssued
	MetricOtpVerified
	MetricOtpRejected
	MetricOtpExpired
	MetricOtpRateLimited
	MetricOtpDeliveryFailed
	MetricTokenIssued
	MetricTokenRefreshed
	MetricTokenRevokedReject
	MetricTokenExpiredReject
	MetricTokenMalformedReject
	MetricRegistrationSuccess
	MetricRegistrationRejected
	MetricPasswordChanged
	MetricRevocation
	metricIDCount
)

// Metrics is a fixed set of atomic counters. All methods are safe for
// concurrent use; a nil receiver is a no-op so the engine can run with
// metrics disabled.
type Metrics struct {
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics returns an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a point-in-time copy of every counter.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricIDCount)
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}
