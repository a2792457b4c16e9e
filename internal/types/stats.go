package types

import "sync/atomic"

// CycleStats holds the monotonic counters of the monitoring loop. The loop is
// the only writer; atomic loads let the health server and control plane read
// concurrently. Counters reset only on process restart.
type CycleStats struct {
	totalChecks     atomic.Uint64
	totalThreats    atomic.Uint64
	totalActuations atomic.Uint64
}

// CycleStatsSnapshot is a point-in-time copy of the counters.
type CycleStatsSnapshot struct {
	TotalChecks     uint64 `json:"total_checks"`
	TotalThreats    uint64 `json:"total_threats"`
	TotalActuations uint64 `json:"total_actuations"`
}

// IncChecks records a completed scheduling tick.
func (s *CycleStats) IncChecks() { s.totalChecks.Add(1) }

// IncThreats records a cycle that produced an incident.
func (s *CycleStats) IncThreats() { s.totalThreats.Add(1) }

// IncActuations records a successful deterrent run.
func (s *CycleStats) IncActuations() { s.totalActuations.Add(1) }

// Snapshot returns a consistent-enough copy for logging and status payloads.
func (s *CycleStats) Snapshot() CycleStatsSnapshot {
	return CycleStatsSnapshot{
		TotalChecks:     s.totalChecks.Load(),
		TotalThreats:    s.totalThreats.Load(),
		TotalActuations: s.totalActuations.Load(),
	}
}
