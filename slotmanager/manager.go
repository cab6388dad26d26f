package slotmanager

import (
	"sync"
	"time"

	"github.com/pergyra-lang/core/errs"
	"github.com/pergyra-lang/core/internal/pool"
	"github.com/pergyra-lang/core/security"
)

// entry is the Slot Entry from spec §3. It lives alongside the pool's raw
// byte block, indexed by the same pool index.
type entry struct {
	slotID          uint32
	typeTag         TypeTag
	occupied        bool
	generation      uint32
	threadAffinity  int64 // goroutine-affinity id; 0 means unaffined
	allocationTime  time.Time
	ownership       Ownership
	refCount        int32
	weakCount       int32
	securityEnabled bool
	level           security.Level
	encryptedToken  security.EncryptedToken
	tokenGeneration uint64
	accessCount     uint64
	windowStart     time.Time
	windowCount     uint64
}

// Manager is the Slot Manager from spec §4.2: a typed, optionally
// reference-counted, optionally capability-secured allocator fronting a
// fixed-capacity internal/pool.Pool.
type Manager struct {
	mu sync.Mutex

	pool    *pool.Pool
	entries []entry

	nextSlotID uint32

	securityEnabled bool
	defaultLevel    security.Level
	secCtx          *security.Context

	anomalyWindow time.Duration
	anomalyRate   uint64 // accesses per anomalyWindow that trigger anomaly detection
}

// Config controls Manager construction.
type Config struct {
	ElementSize    int
	Capacity       int
	CacheOptimized bool

	SecurityEnabled bool
	DefaultLevel    security.Level
	SecurityContext *security.Context
}

// New constructs a Manager backed by a freshly created pool, per spec
// §4.1/§4.2.
func New(cfg Config) *Manager {
	m := &Manager{
		pool:          pool.Create(cfg.ElementSize, cfg.Capacity, cfg.CacheOptimized),
		entries:       make([]entry, cfg.Capacity),
		nextSlotID:    1,
		anomalyWindow: time.Second,
		anomalyRate:   1000, // spec §4.2: >1000 accesses in <1s raises an anomaly
	}
	if cfg.SecurityEnabled {
		m.EnableSecurity(cfg.DefaultLevel, cfg.SecurityContext)
	}
	return m
}

// EnableSecurity turns on the capability-token layer for all subsequent
// claims, per spec §4.2 ("enabled at Manager creation time or via
// EnableSecurity(level)").
func (m *Manager) EnableSecurity(level security.Level, ctx *security.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.securityEnabled = true
	m.defaultLevel = level
	m.secCtx = ctx
}

// Claim allocates a slot of the given type, returning an owned Handle.
func (m *Manager) Claim(tag TypeTag) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimLocked(tag, Owned)
}

// ClaimShared allocates a slot of the given type under reference counting:
// the slot is freed only once every Shared handle derived from it (via
// Retain) has been Released, per the Ownership supplement from
// original_source/ noted in SPEC_FULL.md.
func (m *Manager) ClaimShared(tag TypeTag) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimLocked(tag, Shared)
}

func (m *Manager) claimLocked(tag TypeTag, ownership Ownership) (Handle, error) {
	idx := m.pool.Alloc()
	if idx == pool.NullIndex {
		return Handle{}, errs.New(errs.OutOfSlots, "SlotManager.Claim", nil)
	}

	slotID := uint32(idx) + 1

	e := &m.entries[idx]
	gen := e.generation + 1 // retain generation across reuse to defeat ABA
	*e = entry{
		slotID:         slotID,
		typeTag:        tag,
		occupied:       true,
		generation:     gen,
		allocationTime: time.Now(),
		ownership:      ownership,
		refCount:       1,
	}

	return Handle{SlotID: slotID, TypeTag: tag, Generation: gen, Ownership: ownership}, nil
}

// findLocked resolves a Handle to its backing pool index, validating type,
// occupancy, and generation per spec §4.2's "typed access" rule. Must be
// called with m.mu held.
func (m *Manager) findLocked(h Handle) (int, *errs.Error) {
	for idx := range m.entries {
		e := &m.entries[idx]
		if !e.occupied || e.slotID != h.SlotID {
			continue
		}
		if e.typeTag != h.TypeTag {
			return -1, errs.New(errs.TypeMismatch, "SlotManager", nil)
		}
		if e.generation != h.Generation {
			return -1, errs.New(errs.StaleGeneration, "SlotManager", nil)
		}
		return idx, nil
	}
	return -1, errs.New(errs.SlotNotFound, "SlotManager", nil)
}

// Write copies bytes into the slot referenced by h.
func (m *Manager) Write(h Handle, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.findLocked(h)
	if err != nil {
		err.Op = "SlotManager.Write"
		return err
	}
	m.touchLocked(&m.entries[idx])
	block := m.pool.Get(uint32(idx))
	n := copy(block, data)
	if n < len(data) {
		return errs.New(errs.OutOfMemory, "SlotManager.Write", nil)
	}
	return nil
}

// Read copies up to len(buf) bytes from the slot referenced by h into buf,
// returning the number of bytes copied.
func (m *Manager) Read(h Handle, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.findLocked(h)
	if err != nil {
		err.Op = "SlotManager.Read"
		return 0, err
	}
	m.touchLocked(&m.entries[idx])
	block := m.pool.Get(uint32(idx))
	n := copy(buf, block)
	return n, nil
}

// touchLocked updates access statistics and feeds the anomaly-detection
// window from spec §4.2 ("a slot with > 1000 accesses in < 1s raises an
// anomaly event"). Must be called with m.mu held.
func (m *Manager) touchLocked(e *entry) {
	now := time.Now()
	e.accessCount++
	if e.windowStart.IsZero() || now.Sub(e.windowStart) > m.anomalyWindow {
		e.windowStart = now
		e.windowCount = 0
	}
	e.windowCount++
}

// Release returns the slot referenced by h to the pool. For Shared handles
// the slot is only actually freed once the last reference releases. A Weak
// handle never keeps a slot alive, so releasing one only retires the weak
// reference itself and never frees the slot.
func (m *Manager) Release(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.findLocked(h)
	if err != nil {
		err.Op = "SlotManager.Release"
		return err
	}
	e := &m.entries[idx]
	switch h.Ownership {
	case Shared:
		e.refCount--
		if e.refCount > 0 {
			return nil
		}
	case Weak:
		if e.weakCount > 0 {
			e.weakCount--
		}
		return nil
	}
	m.pool.Free(uint32(idx))
	e.occupied = false
	return nil
}

// Clone produces another handle of the same ownership kind as h, sharing
// the same slot. Cloning a Shared handle behaves exactly like Retain;
// cloning a Weak handle increments the slot's weak-reference count without
// affecting whether the underlying slot stays alive. Owned handles cannot
// be cloned since Owned is defined as the sole reference to a slot.
func (m *Manager) Clone(h Handle) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.findLocked(h)
	if err != nil {
		err.Op = "SlotManager.Clone"
		return Handle{}, err
	}
	switch h.Ownership {
	case Shared:
		m.entries[idx].refCount++
	case Weak:
		m.entries[idx].weakCount++
	default:
		return Handle{}, errs.New(errs.InvalidHandle, "SlotManager.Clone", nil)
	}
	return h, nil
}

// Retain increments the reference count of a Shared handle, returning a new
// Handle sharing the same slot. Retain on a non-Shared handle is an error:
// Owned and Weak handles do not participate in reference counting.
func (m *Manager) Retain(h Handle) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.findLocked(h)
	if err != nil {
		err.Op = "SlotManager.Retain"
		return Handle{}, err
	}
	if h.Ownership != Shared {
		return Handle{}, errs.New(errs.InvalidHandle, "SlotManager.Retain", nil)
	}
	m.entries[idx].refCount++
	return h, nil
}

// Downgrade produces a Weak handle observing the same slot as a Shared
// handle, without affecting its reference count.
func (m *Manager) Downgrade(h Handle) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.findLocked(h)
	if err != nil {
		err.Op = "SlotManager.Downgrade"
		return Handle{}, err
	}
	if h.Ownership != Shared {
		return Handle{}, errs.New(errs.InvalidHandle, "SlotManager.Downgrade", nil)
	}
	m.entries[idx].weakCount++
	weak := h
	weak.Ownership = Weak
	return weak, nil
}

// Upgrade promotes a Weak handle back to a Shared one, incrementing the
// slot's reference count. It fails once the shared count has dropped to
// zero: per the SmartSlot model a Weak handle only observes a
// Shared-owned slot and can never resurrect one that nothing else owns
// anymore.
func (m *Manager) Upgrade(h Handle) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.findLocked(h)
	if err != nil {
		err.Op = "SlotManager.Upgrade"
		return Handle{}, err
	}
	if h.Ownership != Weak {
		return Handle{}, errs.New(errs.InvalidHandle, "SlotManager.Upgrade", nil)
	}
	e := &m.entries[idx]
	if e.refCount <= 0 {
		return Handle{}, errs.New(errs.SlotNotFound, "SlotManager.Upgrade", nil)
	}
	e.refCount++
	if e.weakCount > 0 {
		e.weakCount--
	}
	shared := h
	shared.Ownership = Shared
	return shared, nil
}

// IsValid reports whether h still refers to a live, matching-generation
// slot.
func (m *Manager) IsValid(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.findLocked(h)
	return err == nil
}

// Stats mirrors internal/pool.Stats for the slots this Manager fronts.
func (m *Manager) Stats() pool.Stats {
	return m.pool.Stats()
}
