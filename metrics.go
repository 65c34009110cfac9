package aegis

import "github.com/aegisauth/aegis/internal/metrics"

// MetricID indexes one engine counter.
type MetricID = metrics.MetricID

// Counter ids, re-exported for [Engine.MetricsSnapshot] consumers.
const (
	MetricLoginSuccess       = metrics.MetricLoginSuccess
	MetricLoginRejected      = metrics.MetricLoginRejected
	MetricSessionsEvicted    = metrics.MetricSessionsEvicted
	MetricSessionRotated     = metrics.MetricSessionRotated
	MetricFixationDegraded   = metrics.MetricFixationDegraded
	MetricSessionInvalidated = metrics.MetricSessionInvalidated
	MetricTokenIssued        = metrics.MetricTokenIssued
	MetricTokenAccepted      = metrics.MetricTokenAccepted
	MetricTokenRejected      = metrics.MetricTokenRejected
	MetricTokenRenewed       = metrics.MetricTokenRenewed
	MetricTokenRevoked       = metrics.MetricTokenRevoked
	MetricRenewConflict      = metrics.MetricRenewConflict
)

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot = metrics.Snapshot

// MetricsSnapshot returns the current counters. All zero when metrics are
// disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}
