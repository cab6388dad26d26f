package slotmanager

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pergyra-lang/core/errs"
	"github.com/pergyra-lang/core/security"
)

const typeInt TypeTag = 1

func putInt(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

func getInt(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf))
}

// Scenario 1 from spec §8: basic slot round-trip.
func TestBasicSlotRoundTrip(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 10})

	h, err := m.Claim(typeInt)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := m.Write(h, putInt(42)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 4)
	n, err := m.Read(h, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 4 || getInt(buf) != 42 {
		t.Fatalf("Read = %d (n=%d), want 42", getInt(buf), n)
	}

	if err := m.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}

	_, err = m.Read(h, buf)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.SlotNotFound {
		t.Fatalf("Read after Release: expected SlotNotFound, got %v", err)
	}
}

// Scenario 6 from spec §8: stale handle rejection after reuse.
func TestStaleHandleRejectionAfterReuse(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 1})

	h1, err := m.Claim(typeInt)
	if err != nil {
		t.Fatalf("Claim h1: %v", err)
	}
	if err := m.Release(h1); err != nil {
		t.Fatalf("Release h1: %v", err)
	}
	h2, err := m.Claim(typeInt)
	if err != nil {
		t.Fatalf("Claim h2: %v", err)
	}

	if h1.SlotID != h2.SlotID {
		t.Fatalf("expected slot id reuse, got h1=%d h2=%d", h1.SlotID, h2.SlotID)
	}
	if h1.Generation >= h2.Generation {
		t.Fatalf("expected h1.generation < h2.generation, got %d >= %d", h1.Generation, h2.Generation)
	}

	err = m.Write(h1, putInt(0))
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.StaleGeneration {
		t.Fatalf("Write(h1) after reuse: expected StaleGeneration, got %v", err)
	}
}

// MaxSlots = 1 boundary: sequential claim/release cycles work unboundedly.
func TestMaxSlotsOneCyclesUnboundedly(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 1})
	for i := 0; i < 1000; i++ {
		h, err := m.Claim(typeInt)
		if err != nil {
			t.Fatalf("Claim iteration %d: %v", i, err)
		}
		if err := m.Release(h); err != nil {
			t.Fatalf("Release iteration %d: %v", i, err)
		}
	}
}

// Pool exactly at capacity boundary.
func TestClaimAtCapacityThenReleaseRestoresCapacity(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 2})
	h1, err := m.Claim(typeInt)
	if err != nil {
		t.Fatalf("Claim 1: %v", err)
	}
	if _, err := m.Claim(typeInt); err != nil {
		t.Fatalf("Claim 2: %v", err)
	}

	_, err = m.Claim(typeInt)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.OutOfSlots {
		t.Fatalf("Claim past capacity: expected OutOfSlots, got %v", err)
	}

	if err := m.Release(h1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := m.Claim(typeInt); err != nil {
		t.Fatalf("Claim after release: %v", err)
	}
}

// Zero-size write.
func TestZeroSizeWrite(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 1})
	h, err := m.Claim(typeInt)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := m.Write(h, nil); err != nil {
		t.Fatalf("zero-size Write must succeed, got %v", err)
	}
	buf := make([]byte, 0)
	n, err := m.Read(h, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 0 {
		t.Fatalf("Read into zero-length buffer: n = %d, want 0", n)
	}
}

func newSecureManager(t *testing.T, level security.Level) (*Manager, *security.Context) {
	t.Helper()
	fp := security.GenerateHardwareFingerprint()
	ctx := security.NewContext(fp, nil, 0)
	m := New(Config{
		ElementSize:     4,
		Capacity:        10,
		SecurityEnabled: true,
		DefaultLevel:    level,
		SecurityContext: ctx,
	})
	return m, ctx
}

// Scenario 2 from spec §8: secure write/read, and slot-id mismatch raises
// InvalidToken with a securityViolations increment.
func TestSecureWriteReadAndSlotMismatch(t *testing.T) {
	m, ctx := newSecureManager(t, security.Hardware)

	h, capb, err := m.ClaimSecure(typeInt, security.Hardware)
	if err != nil {
		t.Fatalf("ClaimSecure: %v", err)
	}
	if err := m.WriteSecure(h, putInt(2025), capb); err != nil {
		t.Fatalf("WriteSecure: %v", err)
	}

	buf := make([]byte, 4)
	n, err := m.ReadSecure(h, buf, capb)
	if err != nil {
		t.Fatalf("ReadSecure: %v", err)
	}
	if n != 4 || getInt(buf) != 2025 {
		t.Fatalf("ReadSecure = %d, want 2025", getInt(buf))
	}

	before := ctx.Stats().SecurityViolations

	badCap := capb
	badCap.SlotID = h.SlotID + 1
	err = m.WriteSecure(h, putInt(0), badCap)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.InvalidToken {
		t.Fatalf("WriteSecure with mismatched slot id: expected InvalidToken, got %v", err)
	}

	after := ctx.Stats().SecurityViolations
	if after != before+1 {
		t.Fatalf("securityViolations: got %d, want %d", after, before+1)
	}
}

func TestClaimSecureWithoutEnableSecurityFails(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 1})
	_, _, err := m.ClaimSecure(typeInt, security.Basic)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.ContextNotInitialized {
		t.Fatalf("expected ContextNotInitialized, got %v", err)
	}
}

func TestScopeReleasesInReverseOrder(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 2})
	h1, err := m.Claim(typeInt)
	if err != nil {
		t.Fatalf("Claim h1: %v", err)
	}
	h2, err := m.Claim(typeInt)
	if err != nil {
		t.Fatalf("Claim h2: %v", err)
	}

	scope := NewScope(m)
	scope.Track(h1)
	scope.Track(h2)
	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if m.IsValid(h1) || m.IsValid(h2) {
		t.Fatal("both handles must be invalid after scope close")
	}

	// Close is idempotent.
	if err := scope.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}
}

func TestSharedOwnershipRefCounting(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 1})
	h, err := m.ClaimShared(typeInt)
	if err != nil {
		t.Fatalf("ClaimShared: %v", err)
	}
	shared2, err := m.Retain(h)
	if err != nil {
		t.Fatalf("Retain: %v", err)
	}

	if err := m.Release(h); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if !m.IsValid(shared2) {
		t.Fatal("slot must remain valid while a Shared reference is outstanding")
	}
	if err := m.Release(shared2); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if m.IsValid(shared2) {
		t.Fatal("slot must be freed once the last Shared reference releases")
	}
}
