package synth

import (
	"sync"
	"time"
)

// Selection weights for the best-provider score.
const (
	successWeight = 0.7
	speedWeight   = 0.3

	// minSamples is the attempt count a provider needs before it is
	// eligible for best-provider selection.
	minSamples = 3
)

// Snapshot is a point-in-time copy of one provider's statistics.
type Snapshot struct {
	Provider   string
	Successes  int64
	Failures   int64
	AvgLatency time.Duration
}

// SuccessRate is successes over total attempts, zero when unused.
func (s Snapshot) SuccessRate() float64 {
	total := s.Successes + s.Failures
	if total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(total)
}

// SpeedScore maps average latency to (0,1]: 1 at zero latency, 0.5 at one
// second.
func (s Snapshot) SpeedScore() float64 {
	return 1 / (1 + s.AvgLatency.Seconds())
}

// score is the weighted selection criterion.
func (s Snapshot) score() float64 {
	return s.SuccessRate()*successWeight + s.SpeedScore()*speedWeight
}

// providerStat is one provider's live counters, guarded by its own mutex so
// updates from unrelated calls never contend on a shared lock.
type providerStat struct {
	mu         sync.Mutex
	successes  int64
	failures   int64
	avgLatency time.Duration
}

// Stats aggregates per-provider attempt outcomes across all calls. The
// provider set is fixed at construction; only the counters mutate.
type Stats struct {
	byName map[string]*providerStat
	order  []string
}

// NewStats creates the registry for the named providers.
func NewStats(providers []string) *Stats {
	s := &Stats{
		byName: make(map[string]*providerStat, len(providers)),
		order:  append([]string(nil), providers...),
	}
	for _, name := range providers {
		s.byName[name] = &providerStat{}
	}
	return s
}

// RecordSuccess folds one successful attempt's latency into the rolling
// average via incremental mean.
func (s *Stats) RecordSuccess(provider string, latency time.Duration) {
	ps, ok := s.byName[provider]
	if !ok {
		return
	}
	ps.mu.Lock()
	ps.successes++
	ps.avgLatency += (latency - ps.avgLatency) / time.Duration(ps.successes)
	ps.mu.Unlock()
}

// RecordFailure counts one failed attempt. Latency is not folded in; a
// timed-out attempt would poison the speed score.
func (s *Stats) RecordFailure(provider string) {
	ps, ok := s.byName[provider]
	if !ok {
		return
	}
	ps.mu.Lock()
	ps.failures++
	ps.mu.Unlock()
}

// Snapshot returns a copy of one provider's counters.
func (s *Stats) Snapshot(provider string) (Snapshot, bool) {
	ps, ok := s.byName[provider]
	if !ok {
		return Snapshot{}, false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Snapshot{
		Provider:   provider,
		Successes:  ps.successes,
		Failures:   ps.failures,
		AvgLatency: ps.avgLatency,
	}, true
}

// All returns snapshots for every provider in registration order.
func (s *Stats) All() []Snapshot {
	out := make([]Snapshot, 0, len(s.order))
	for _, name := range s.order {
		snap, _ := s.Snapshot(name)
		out = append(out, snap)
	}
	return out
}

// Best returns the provider with the highest weighted score among those with
// at least minSamples attempts. ok is false when no provider qualifies yet.
func (s *Stats) Best() (string, bool) {
	var (
		bestName  string
		bestScore float64
		found     bool
	)
	for _, name := range s.order {
		snap, _ := s.Snapshot(name)
		if snap.Successes+snap.Failures < minSamples {
			continue
		}
		if sc := snap.score(); !found || sc > bestScore {
			bestName, bestScore, found = name, sc, true
		}
	}
	return bestName, found
}
