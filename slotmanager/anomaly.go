package slotmanager

import "time"

// Anomaly describes a slot whose access pattern has crossed the
// anomaly-detection threshold from spec §4.2 ("a slot with > 1000 accesses
// in < 1s raises an anomaly event").
type Anomaly struct {
	SlotID      uint32
	AccessCount uint64
}

// Anomalies returns every currently occupied slot whose access rate this
// tick exceeds the Manager's configured threshold. Callers typically poll
// this from a background fiber rather than on every access, keeping the hot
// Read/Write path free of anomaly bookkeeping beyond the counter bump in
// touchLocked.
func (m *Manager) Anomalies() []Anomaly {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Anomaly
	for i := range m.entries {
		e := &m.entries[i]
		if !e.occupied {
			continue
		}
		if e.windowCount > m.anomalyRate && time.Since(e.windowStart) <= m.anomalyWindow {
			out = append(out, Anomaly{SlotID: e.slotID, AccessCount: e.windowCount})
		}
	}
	return out
}

// SetAnomalyThreshold overrides the default 1000-accesses-per-second
// anomaly trigger, primarily for tests that need a tight window.
func (m *Manager) SetAnomalyThreshold(rate uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalyRate = rate
}
