// Package shares counts pool verdicts on submitted shares and reports them.
package shares

import "sync/atomic"

// Snapshot is a point-in-time copy of the share counters.
type Snapshot struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// Total returns the number of verdicts in the snapshot.
func (s Snapshot) Total() uint64 {
	return s.Accepted + s.Rejected
}

// Accountant holds the accepted and rejected share counters for one run.
// It is written by the mining session and read by the reporter and the
// dashboard; all methods are safe for concurrent use.
type Accountant struct {
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewAccountant returns an Accountant with both counters at zero.
func NewAccountant() *Accountant {
	return &Accountant{}
}

// Record counts one pool verdict.
func (a *Accountant) Record(accepted bool) {
	if accepted {
		a.accepted.Add(1)
		return
	}
	a.rejected.Add(1)
}

// Snapshot returns the current counters. The two values are read
// independently, so a concurrent Record may be reflected in one but not
// yet the other.
func (a *Accountant) Snapshot() Snapshot {
	return Snapshot{
		Accepted: a.accepted.Load(),
		Rejected: a.rejected.Load(),
	}
}
