package metrics

import "sync/atomic"

// MetricID indexes a single counter slot.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginRejected
	MetricSessionsEvicted
	MetricSessionRotated
	MetricFixationDegraded
	MetricSessionInvalidated
	MetricTokenIssued
	MetricTokenAccepted
	MetricTokenRejected
	MetricTokenRenewed
	MetricTokenRevoked
	MetricRenewConflict

	MetricIDCount
)

// Config controls whether counting is active at all.
type Config struct {
	Enabled bool
}

type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// Metrics holds cache-line-padded atomic counters. All operations are
// no-ops when constructed with Enabled=false.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Counters [MetricIDCount]uint64
}

func (m *Metrics) Snapshot() Snapshot {
	var snap Snapshot
	if m == nil || !m.enabled {
		return snap
	}
	for i := range m.counters {
		snap.Counters[i] = m.counters[i].value.Load()
	}
	return snap
}
