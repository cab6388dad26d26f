package party

import "sync"

// FiberStats accumulates per-role execution statistics, per spec §4.6
// ("per-role statistics ... updated atomically").
type FiberStats struct {
	mu             sync.Mutex
	executionCount uint64
	errorCount     uint64
	minNs          int64
	maxNs          int64
	sumNs          int64
}

func (s *FiberStats) record(durationNs int64, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionCount++
	if !success {
		s.errorCount++
	}
	s.sumNs += durationNs
	if s.minNs == 0 || durationNs < s.minNs {
		s.minNs = durationNs
	}
	if durationNs > s.maxNs {
		s.maxNs = durationNs
	}
}

// Snapshot is a point-in-time, race-free copy of a FiberStats.
type Snapshot struct {
	ExecutionCount uint64
	ErrorCount     uint64
	MinNs          int64
	MaxNs          int64
	AvgNs          int64
}

// Snapshot returns a copy of the current counters.
func (s *FiberStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var avg int64
	if s.executionCount > 0 {
		avg = s.sumNs / int64(s.executionCount)
	}
	return Snapshot{
		ExecutionCount: s.executionCount,
		ErrorCount:     s.errorCount,
		MinNs:          s.minNs,
		MaxNs:          s.maxNs,
		AvgNs:          avg,
	}
}
