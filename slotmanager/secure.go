package slotmanager

import (
	"github.com/pergyra-lang/core/errs"
	"github.com/pergyra-lang/core/security"
)

// ClaimSecure allocates a slot and issues a fresh Capability for it at the
// given security level, per spec §4.2's secure Claim
// variant. It fails with ContextNotInitialized if EnableSecurity was never
// called.
func (m *Manager) ClaimSecure(tag TypeTag, level security.Level) (Handle, security.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.securityEnabled || m.secCtx == nil {
		return Handle{}, security.Capability{}, errs.New(errs.ContextNotInitialized, "SlotManager.ClaimSecure", nil)
	}

	h, err := m.claimLocked(tag, Owned)
	if err != nil {
		return Handle{}, security.Capability{}, err
	}

	capb, cerr := m.secCtx.Generate(h.SlotID, level, 0, security.FullPermissions())
	if cerr != nil {
		idx, _ := m.findLocked(h)
		m.pool.Free(uint32(idx))
		m.entries[idx].occupied = false
		return Handle{}, security.Capability{}, cerr
	}

	idx, _ := m.findLocked(h)
	e := &m.entries[idx]
	e.securityEnabled = true
	e.level = level
	e.tokenGeneration = capb.Token.Generation

	if level == security.Encrypted {
		et, eerr := m.secCtx.Encrypt(capb.Token)
		if eerr != nil {
			return Handle{}, security.Capability{}, eerr
		}
		e.encryptedToken = et
	}

	return h, capb, nil
}

// validateCapabilityLocked checks capb against the slot h names, per spec
// §4.2's secure-op validation chain. Must be called with m.mu held.
func (m *Manager) validateCapabilityLocked(h Handle, capb security.Capability) (int, *errs.Error) {
	if !m.securityEnabled || m.secCtx == nil {
		return -1, errs.New(errs.ContextNotInitialized, "SlotManager", nil)
	}
	idx, ferr := m.findLocked(h)
	if ferr != nil {
		return -1, ferr
	}
	e := &m.entries[idx]
	if !e.securityEnabled {
		return idx, nil
	}

	// A capability from a generation RefreshToken superseded or
	// RevokeToken zeroed out must never validate, regardless of what its
	// own token bytes claim.
	if capb.Level.RequiresToken() && capb.Token.Generation != e.tokenGeneration {
		return -1, errs.New(errs.InvalidToken, "SlotManager", nil)
	}

	var verr error
	if e.level == security.Encrypted {
		verr = m.secCtx.ValidateSealed(h.SlotID, capb, e.encryptedToken)
	} else {
		presented := capb
		if presented.Level > e.level {
			presented.Level = e.level
		}
		verr = m.secCtx.Validate(h.SlotID, presented)
	}
	if verr != nil {
		se, ok := verr.(*errs.Error)
		if !ok {
			se = errs.New(errs.PermissionDenied, "SlotManager", verr)
		}
		return -1, se
	}
	return idx, nil
}

// WriteSecure writes to a security-enabled slot after validating capb.
func (m *Manager) WriteSecure(h Handle, data []byte, capb security.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.validateCapabilityLocked(h, capb)
	if err != nil {
		err.Op = "SlotManager.WriteSecure"
		return err
	}
	if !capb.CanWrite {
		return errs.New(errs.PermissionDenied, "SlotManager.WriteSecure", nil)
	}
	m.touchLocked(&m.entries[idx])
	block := m.pool.Get(uint32(idx))
	n := copy(block, data)
	if n < len(data) {
		return errs.New(errs.OutOfMemory, "SlotManager.WriteSecure", nil)
	}
	return nil
}

// ReadSecure reads from a security-enabled slot after validating capb.
func (m *Manager) ReadSecure(h Handle, buf []byte, capb security.Capability) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.validateCapabilityLocked(h, capb)
	if err != nil {
		err.Op = "SlotManager.ReadSecure"
		return 0, err
	}
	if !capb.CanRead {
		return 0, errs.New(errs.PermissionDenied, "SlotManager.ReadSecure", nil)
	}
	m.touchLocked(&m.entries[idx])
	block := m.pool.Get(uint32(idx))
	n := copy(buf, block)
	return n, nil
}

// ReleaseSecure releases a security-enabled slot after validating capb,
// wiping the stored encrypted token first per spec §4.2's release
// semantics.
func (m *Manager) ReleaseSecure(h Handle, capb security.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.validateCapabilityLocked(h, capb)
	if err != nil {
		err.Op = "SlotManager.ReleaseSecure"
		return err
	}
	e := &m.entries[idx]
	if h.Ownership == Shared {
		e.refCount--
		if e.refCount > 0 {
			return nil
		}
	}
	if len(e.encryptedToken.Ciphertext) > 0 {
		for i := range e.encryptedToken.Ciphertext {
			e.encryptedToken.Ciphertext[i] = 0
		}
	}
	if m.secCtx != nil {
		m.secCtx.Forget(h.SlotID)
	}
	e.tokenGeneration = 0
	m.pool.Free(uint32(idx))
	e.occupied = false
	return nil
}

// RefreshToken issues a new Capability for the same slot, invalidating the
// generation embedded in the old one.
func (m *Manager) RefreshToken(h Handle, old security.Capability) (security.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.validateCapabilityLocked(h, old)
	if err != nil {
		err.Op = "SlotManager.RefreshToken"
		return security.Capability{}, err
	}
	e := &m.entries[idx]
	fresh, cerr := m.secCtx.Generate(h.SlotID, e.level, 0, security.Permissions{
		CanRead: old.CanRead, CanWrite: old.CanWrite, CanTransfer: old.CanTransfer,
	})
	if cerr != nil {
		return security.Capability{}, cerr
	}
	e.tokenGeneration = fresh.Token.Generation
	return fresh, nil
}

// RevokeToken marks a slot's security state so that no previously issued
// Capability validates again, by zeroing the slot's stored token generation
// and forgetting the token material validateCapabilityLocked would
// otherwise compare against. RefreshToken validates the old capability
// first, so it cannot reissue one for a revoked slot.
func (m *Manager) RevokeToken(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ferr := m.findLocked(h)
	if ferr != nil {
		ferr.Op = "SlotManager.RevokeToken"
		return ferr
	}
	m.entries[idx].tokenGeneration = 0
	if m.secCtx != nil {
		m.secCtx.Forget(h.SlotID)
	}
	return nil
}

// ValidateToken checks capb against h without performing any operation,
// useful for callers that want to pre-flight a capability.
func (m *Manager) ValidateToken(h Handle, capb security.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.validateCapabilityLocked(h, capb)
	if err != nil {
		err.Op = "SlotManager.ValidateToken"
		return err
	}
	return nil
}

// DowngradeSecurity lowers a slot's security level without reissuing a
// token, the SUPPLEMENT feature from original_source/ noted in
// SPEC_FULL.md. Lowering is always permitted; it never requires the
// caller to present a capability since it strictly reduces the
// protection surface.
func (m *Manager) DowngradeSecurity(h Handle, level security.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.findLocked(h)
	if err != nil {
		err.Op = "SlotManager.DowngradeSecurity"
		return err
	}
	e := &m.entries[idx]
	if level > e.level {
		return errs.New(errs.PermissionDenied, "SlotManager.DowngradeSecurity", nil)
	}
	if e.level == security.Encrypted && level != security.Encrypted && level.RequiresToken() && m.secCtx != nil {
		// The in-memory comparison store Validate reads from never held
		// this slot's token while it was Encrypted; seed it from the
		// sealed copy so the existing capability keeps validating at the
		// new level without forcing a fresh one.
		if tok, derr := m.secCtx.Decrypt(e.encryptedToken); derr == nil {
			m.secCtx.Seed(h.SlotID, tok)
		}
	}
	e.level = level
	if level == security.Insecure {
		e.securityEnabled = false
	}
	return nil
}

// UpgradeSecurity raises a slot's security level, requiring a valid
// existing capability and issuing a fresh one at the new level.
func (m *Manager) UpgradeSecurity(h Handle, level security.Level, capb security.Capability) (security.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.validateCapabilityLocked(h, capb)
	if err != nil {
		err.Op = "SlotManager.UpgradeSecurity"
		return security.Capability{}, err
	}
	e := &m.entries[idx]
	if level < e.level {
		return security.Capability{}, errs.New(errs.PermissionDenied, "SlotManager.UpgradeSecurity", nil)
	}
	fresh, cerr := m.secCtx.Generate(h.SlotID, level, 0, security.Permissions{
		CanRead: capb.CanRead, CanWrite: capb.CanWrite, CanTransfer: capb.CanTransfer,
	})
	if cerr != nil {
		return security.Capability{}, cerr
	}
	if level == security.Encrypted {
		et, eerr := m.secCtx.Encrypt(fresh.Token)
		if eerr != nil {
			return security.Capability{}, eerr
		}
		e.encryptedToken = et
	}
	e.securityEnabled = true
	e.level = level
	e.tokenGeneration = fresh.Token.Generation
	return fresh, nil
}
