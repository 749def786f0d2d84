package mesh

import (
	"time"

	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// neutralScore is assigned to peers with no recorded interactions so new
// peers are not excluded from path selection.
const neutralScore = 0.5

// ReputationRecord accumulates delivery outcomes for one peer. Counters only
// ever grow; the score is derived on read.
type ReputationRecord struct {
	SuccessCount uint64
	FailureCount uint64
	AvgLatencyMS float64
	LastSeenAt   time.Time
}

// ReputationTracker maintains per-peer delivery-quality records. Owned by the
// engine loop; no lock.
type ReputationTracker struct {
	records map[transport.PeerID]*ReputationRecord
}

func NewReputationTracker() *ReputationTracker {
	return &ReputationTracker{records: make(map[transport.PeerID]*ReputationRecord)}
}

func (r *ReputationTracker) get(peer transport.PeerID) *ReputationRecord {
	rec := r.records[peer]
	if rec == nil {
		rec = &ReputationRecord{}
		r.records[peer] = rec
	}
	return rec
}

// RecordSuccess credits every hop of a delivered path and folds the attempt
// latency into each hop's rolling average.
func (r *ReputationTracker) RecordSuccess(path Path, latency time.Duration, now time.Time) {
	ms := float64(latency.Milliseconds())
	for _, hop := range path {
		rec := r.get(hop)
		rec.SuccessCount++
		n := float64(rec.SuccessCount)
		rec.AvgLatencyMS += (ms - rec.AvgLatencyMS) / n
		rec.LastSeenAt = now
	}
}

// RecordFailure debits every hop of a failed path. The attempt still proves
// the hop was reachable enough to try, so lastSeenAt is refreshed too.
func (r *ReputationTracker) RecordFailure(path Path, now time.Time) {
	for _, hop := range path {
		rec := r.get(hop)
		rec.FailureCount++
		rec.LastSeenAt = now
	}
}

// Score derives a delivery-quality score in [0,1]:
// 70% success ratio, 20% latency, 10% recency.
func (r *ReputationTracker) Score(peer transport.PeerID, now time.Time) float64 {
	rec := r.records[peer]
	if rec == nil {
		return neutralScore
	}

	succ := float64(rec.SuccessCount)
	fail := float64(rec.FailureCount)
	successPart := succ / (succ + fail + 1)

	lat := rec.AvgLatencyMS
	if lat > 2000 {
		lat = 2000
	}
	latencyPart := 1 - lat/2000

	return 0.7*successPart + 0.2*latencyPart + 0.1*recencyFactor(rec.LastSeenAt, now)
}

// Record returns a copy of a peer's record for diagnostics.
func (r *ReputationTracker) Record(peer transport.PeerID) (ReputationRecord, bool) {
	rec := r.records[peer]
	if rec == nil {
		return ReputationRecord{}, false
	}
	return *rec, true
}

// Snapshot copies all records for diagnostics export.
func (r *ReputationTracker) Snapshot() map[transport.PeerID]ReputationRecord {
	out := make(map[transport.PeerID]ReputationRecord, len(r.records))
	for id, rec := range r.records {
		out[id] = *rec
	}
	return out
}

func recencyFactor(lastSeen, now time.Time) float64 {
	if lastSeen.IsZero() {
		return 0
	}
	age := now.Sub(lastSeen)
	switch {
	case age < time.Minute:
		return 1.0
	case age < 5*time.Minute:
		return 0.7
	case age < time.Hour:
		return 0.5
	default:
		return 0.2
	}
}
