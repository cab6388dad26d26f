package slotmanager

import (
	"errors"
	"testing"

	"github.com/pergyra-lang/core/errs"
	"github.com/pergyra-lang/core/security"
)

// TestRevokeTokenInvalidatesCapability covers the RevokeToken half of the
// generation-invalidation fix: a capability that validated fine before
// revocation must be rejected afterward.
func TestRevokeTokenInvalidatesCapability(t *testing.T) {
	m, _ := newSecureManager(t, security.Basic)

	h, capb, err := m.ClaimSecure(typeInt, security.Basic)
	if err != nil {
		t.Fatalf("ClaimSecure: %v", err)
	}
	if err := m.WriteSecure(h, putInt(1), capb); err != nil {
		t.Fatalf("WriteSecure before revoke: %v", err)
	}

	if err := m.RevokeToken(h); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	buf := make([]byte, 4)
	_, err = m.ReadSecure(h, buf, capb)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.InvalidToken {
		t.Fatalf("ReadSecure after RevokeToken: expected InvalidToken, got %v", err)
	}
}

// TestRefreshTokenInvalidatesOldCapability covers the RefreshToken half: the
// capability superseded by a refresh must stop validating even though its
// token bytes are otherwise exactly as issued.
func TestRefreshTokenInvalidatesOldCapability(t *testing.T) {
	m, _ := newSecureManager(t, security.Basic)

	h, oldCap, err := m.ClaimSecure(typeInt, security.Basic)
	if err != nil {
		t.Fatalf("ClaimSecure: %v", err)
	}

	newCap, err := m.RefreshToken(h, oldCap)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}

	if err := m.WriteSecure(h, putInt(7), newCap); err != nil {
		t.Fatalf("WriteSecure with fresh capability: %v", err)
	}

	err = m.WriteSecure(h, putInt(0), oldCap)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.InvalidToken {
		t.Fatalf("WriteSecure with superseded capability: expected InvalidToken, got %v", err)
	}
}

// TestEncryptedLevelSecureRoundTrip exercises ClaimSecure/WriteSecure/
// ReadSecure at the Encrypted level end to end, where validation must go
// through ValidateSealed, and confirms a tampered capability is rejected.
func TestEncryptedLevelSecureRoundTrip(t *testing.T) {
	m, _ := newSecureManager(t, security.Encrypted)

	h, capb, err := m.ClaimSecure(typeInt, security.Encrypted)
	if err != nil {
		t.Fatalf("ClaimSecure: %v", err)
	}
	if err := m.WriteSecure(h, putInt(99), capb); err != nil {
		t.Fatalf("WriteSecure: %v", err)
	}
	buf := make([]byte, 4)
	n, err := m.ReadSecure(h, buf, capb)
	if err != nil {
		t.Fatalf("ReadSecure: %v", err)
	}
	if n != 4 || getInt(buf) != 99 {
		t.Fatalf("ReadSecure = %d, want 99", getInt(buf))
	}

	forged := capb
	forged.Token.Data = [32]byte{0xFF}
	_, err = m.ReadSecure(h, buf, forged)
	var e *errs.Error
	if !errors.As(err, &e) || (e.Kind != errs.InvalidToken && e.Kind != errs.PermissionDenied) {
		t.Fatalf("ReadSecure with tampered Encrypted capability: expected rejection, got %v", err)
	}
}

// TestDowngradeSecurityFromEncryptedPreservesCapability proves the Seed
// fix: moving a slot from Encrypted down to a level that keeps its
// material in memory must not strand the original capability.
func TestDowngradeSecurityFromEncryptedPreservesCapability(t *testing.T) {
	m, _ := newSecureManager(t, security.Encrypted)

	h, capb, err := m.ClaimSecure(typeInt, security.Encrypted)
	if err != nil {
		t.Fatalf("ClaimSecure: %v", err)
	}

	if err := m.DowngradeSecurity(h, security.Basic); err != nil {
		t.Fatalf("DowngradeSecurity: %v", err)
	}

	if err := m.WriteSecure(h, putInt(5), capb); err != nil {
		t.Fatalf("WriteSecure after downgrade: expected the original capability to still validate, got %v", err)
	}
}

// TestCloneSharedAndWeak covers Clone on both Shared and Weak handles, and
// confirms Owned handles reject cloning.
func TestCloneSharedAndWeak(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 1})

	owned, err := m.Claim(typeInt)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	_, err = m.Clone(owned)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.InvalidHandle {
		t.Fatalf("Clone(Owned): expected InvalidHandle, got %v", err)
	}
	if err := m.Release(owned); err != nil {
		t.Fatalf("Release owned: %v", err)
	}

	shared, err := m.ClaimShared(typeInt)
	if err != nil {
		t.Fatalf("ClaimShared: %v", err)
	}
	sharedClone, err := m.Clone(shared)
	if err != nil {
		t.Fatalf("Clone(Shared): %v", err)
	}
	if err := m.Release(shared); err != nil {
		t.Fatalf("Release shared: %v", err)
	}
	if !m.IsValid(sharedClone) {
		t.Fatal("slot must remain valid while the cloned Shared handle is outstanding")
	}

	weak, err := m.Downgrade(sharedClone)
	if err != nil {
		t.Fatalf("Downgrade: %v", err)
	}
	weakClone, err := m.Clone(weak)
	if err != nil {
		t.Fatalf("Clone(Weak): %v", err)
	}

	if err := m.Release(sharedClone); err != nil {
		t.Fatalf("Release sharedClone: %v", err)
	}
	if m.IsValid(weak) || m.IsValid(weakClone) {
		t.Fatal("Weak handles never keep the slot alive; it must be freed once the last Shared ref releases")
	}
}

// TestUpgradePromotesWeakToShared covers the success and failure paths of
// Upgrade, and confirms Release on a Weak handle never frees a slot still
// held by a Shared owner (the bug found alongside Upgrade/Clone).
func TestUpgradePromotesWeakToShared(t *testing.T) {
	m := New(Config{ElementSize: 4, Capacity: 1})

	shared, err := m.ClaimShared(typeInt)
	if err != nil {
		t.Fatalf("ClaimShared: %v", err)
	}
	weak, err := m.Downgrade(shared)
	if err != nil {
		t.Fatalf("Downgrade: %v", err)
	}

	// Releasing a Weak handle must never free a slot a Shared owner still holds.
	if err := m.Release(weak); err != nil {
		t.Fatalf("Release(weak): %v", err)
	}
	if !m.IsValid(shared) {
		t.Fatal("releasing a Weak handle must not free a slot a Shared owner still holds")
	}

	weak2, err := m.Downgrade(shared)
	if err != nil {
		t.Fatalf("Downgrade 2: %v", err)
	}
	promoted, err := m.Upgrade(weak2)
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if promoted.Ownership != Shared {
		t.Fatalf("Upgrade must return a Shared handle, got %v", promoted.Ownership)
	}

	if err := m.Release(shared); err != nil {
		t.Fatalf("Release shared: %v", err)
	}
	if !m.IsValid(promoted) {
		t.Fatal("slot must remain valid: the upgraded handle is an additional Shared reference")
	}

	if err := m.Release(promoted); err != nil {
		t.Fatalf("Release promoted: %v", err)
	}
	if m.IsValid(promoted) {
		t.Fatal("slot must be freed once the last Shared reference releases")
	}

	_, err = m.Upgrade(weak2)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.SlotNotFound {
		t.Fatalf("Upgrade after refCount reached zero: expected SlotNotFound, got %v", err)
	}
}
