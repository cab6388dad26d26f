package security

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pergyra-lang/core/errs"
)

// Context is the Security Context from spec §4.3: it owns the host's
// derived master key, issues and validates capabilities for slots, and
// tracks the counters an anomaly detector watches. One Context is shared by
// every slotmanager.Manager in a runtime instance.
type Context struct {
	mu          sync.RWMutex
	fingerprint HardwareFingerprint
	masterKey   [32]byte
	sink        AuditSink

	generation uint64 // monotonically incremented per capability issued

	tokensIssued       uint64
	tokensValidated    uint64
	validationFailures uint64
	securityViolations uint64

	// violationsBySlot counts consecutive validation failures per slot,
	// the anomaly-detection signal from spec §4.3 ("repeated failures
	// against the same slot indicate a possible attack").
	violationsBySlot sync.Map // map[uint32]*uint64

	// issuedTokens holds the Data/Generation the Context actually handed
	// out per slot for Basic and Hardware levels, so Validate can
	// regenerate the expected token from this stored material and compare
	// it against the presented one, per spec §4.2, rather than trusting
	// the presented bytes. Encrypted-level slots use ValidateSealed
	// instead: their issued material lives only in the slot's sealed
	// EncryptedToken, not here.
	issuedTokens sync.Map // map[uint32]issuedRecord

	anomalyThreshold uint64
	now              func() time.Time
}

// issuedRecord is the locked-memory copy of a Basic/Hardware token kept by
// the Context at issuance time.
type issuedRecord struct {
	data       [32]byte
	generation uint64
}

// NewContext creates a Context bound to the given hardware fingerprint. A
// nil sink defaults to NopAuditSink; anomalyThreshold <= 0 defaults to 10
// consecutive failures, the same default config.Default uses.
func NewContext(fp HardwareFingerprint, sink AuditSink, anomalyThreshold int) *Context {
	if sink == nil {
		sink = NopAuditSink{}
	}
	threshold := uint64(anomalyThreshold)
	if anomalyThreshold <= 0 {
		threshold = 10
	}
	return &Context{
		fingerprint:      fp,
		masterKey:        deriveMasterKey(fp),
		sink:             sink,
		anomalyThreshold: threshold,
		now:              time.Now,
	}
}

// Generate issues a new Capability for slotID at the given level, per spec
// §4.2's token generation algorithm. level == Insecure yields a zero-value
// token that Validate always accepts, matching RequiresToken's contract.
func (c *Context) Generate(slotID uint32, level Level, ttl time.Duration, perms Permissions) (Capability, error) {
	issued := c.now()
	if ttl <= 0 {
		ttl = DefaultTTL(level)
	}
	capb := Capability{
		SlotID:      slotID,
		Level:       level,
		IssuedTime:  issued,
		ExpiryTime:  issued.Add(ttl),
		CanRead:     perms.CanRead,
		CanWrite:    perms.CanWrite,
		CanTransfer: perms.CanTransfer,
	}
	if !level.RequiresToken() {
		c.sink.Record(Event{Kind: EventTokenGenerated, SlotID: slotID, Level: level, Time: issued, Detail: "insecure"})
		return capb, nil
	}

	gen := atomic.AddUint64(&c.generation, 1)
	var rand16 [16]byte
	if err := secureRandom(rand16[:]); err != nil {
		return Capability{}, errs.New(errs.InsufficientEntropy, "Security.Generate", err)
	}

	material := composeTokenMaterial(c.fingerprint, slotID, issued.UnixNano(), rand16)
	data := deriveTokenData(material)
	token := Token{
		Data:       data,
		Generation: gen,
		Checksum:   fingerprintHash(c.fingerprint) ^ uint32(gen) ^ slotID,
	}
	capb.Token = token

	if level != Encrypted {
		c.issuedTokens.Store(slotID, issuedRecord{data: data, generation: gen})
	}

	atomic.AddUint64(&c.tokensIssued, 1)
	c.sink.Record(Event{Kind: EventTokenGenerated, SlotID: slotID, Level: level, Time: issued, Detail: "issued"})
	return capb, nil
}

// Permissions selects which operations a freshly generated Capability
// authorizes.
type Permissions struct {
	CanRead     bool
	CanWrite    bool
	CanTransfer bool
}

// FullPermissions grants read, write, and transfer.
func FullPermissions() Permissions {
	return Permissions{CanRead: true, CanWrite: true, CanTransfer: true}
}

// Validate checks a Capability against the current Context state,
// implementing the full chain from spec §4.2: TTL, slot binding, hardware
// binding (Hardware level and above), and checksum/token recomputation
// against the Data this Context actually issued for slotID — not the
// presented Data — all compared in constant time. Encrypted-level
// capabilities must go through ValidateSealed instead, since their issued
// Data is never kept in memory here.
func (c *Context) Validate(slotID uint32, capb Capability) error {
	now := c.now()

	if !capb.Level.RequiresToken() {
		return nil
	}
	if capb.Level == Encrypted {
		return c.fail(slotID, capb, now, errs.InvalidToken, "encrypted capability presented to Validate")
	}
	if err := c.checkCommonLocked(slotID, capb, now); err != nil {
		return err
	}

	v, ok := c.issuedTokens.Load(slotID)
	if !ok {
		return c.fail(slotID, capb, now, errs.InvalidToken, "no issued token for slot")
	}
	issued := v.(issuedRecord)
	expected := Token{
		Data:       issued.data,
		Generation: issued.generation,
		Checksum:   fingerprintHash(c.fingerprint) ^ uint32(issued.generation) ^ slotID,
	}
	if !constantTimeCompareTokens(capb.Token, expected) {
		return c.fail(slotID, capb, now, errs.InvalidToken, "checksum mismatch")
	}

	return c.succeed(slotID, capb, now)
}

// ValidateSealed is Validate for Encrypted-level slots: the issued Data
// lives only in the sealed et recorded at issuance (slotmanager's
// per-slot EncryptedToken), so it is decrypted here and compared against
// the presented token rather than against itself.
func (c *Context) ValidateSealed(slotID uint32, capb Capability, et EncryptedToken) error {
	now := c.now()

	if !capb.Level.RequiresToken() {
		return nil
	}
	if err := c.checkCommonLocked(slotID, capb, now); err != nil {
		return err
	}

	issued, derr := c.Decrypt(et)
	if derr != nil {
		return c.fail(slotID, capb, now, errs.InvalidToken, "sealed token unreadable")
	}
	if !constantTimeCompareTokens(capb.Token, issued) {
		return c.fail(slotID, capb, now, errs.InvalidToken, "checksum mismatch")
	}

	return c.succeed(slotID, capb, now)
}

// checkCommonLocked runs the TTL, slot-binding, and hardware-binding
// checks shared by Validate and ValidateSealed.
func (c *Context) checkCommonLocked(slotID uint32, capb Capability, now time.Time) error {
	if capb.Expired(now) {
		return c.fail(slotID, capb, now, errs.TokenExpired, "expired")
	}
	if capb.SlotID != slotID {
		atomic.AddUint64(&c.securityViolations, 1)
		return c.fail(slotID, capb, now, errs.InvalidToken, "slot mismatch")
	}
	if capb.Level >= Hardware {
		current := GenerateHardwareFingerprint()
		if !Equal(current, c.fingerprint) {
			atomic.AddUint64(&c.securityViolations, 1)
			c.sink.Record(Event{Kind: EventHardwareMismatch, SlotID: slotID, Level: capb.Level, Time: now, Detail: "fingerprint mismatch"})
			return errs.New(errs.HardwareMismatch, "Security.Validate", nil)
		}
	}
	return nil
}

func (c *Context) fail(slotID uint32, capb Capability, now time.Time, kind errs.Kind, detail string) error {
	atomic.AddUint64(&c.validationFailures, 1)
	c.recordViolation(slotID)
	c.sink.Record(Event{Kind: EventValidationFailed, SlotID: slotID, Level: capb.Level, Time: now, Detail: detail})
	return errs.New(kind, "Security.Validate", nil)
}

func (c *Context) succeed(slotID uint32, capb Capability, now time.Time) error {
	atomic.AddUint64(&c.tokensValidated, 1)
	c.clearViolation(slotID)
	c.sink.Record(Event{Kind: EventTokenValidated, SlotID: slotID, Level: capb.Level, Time: now, Detail: "ok"})
	return nil
}

// Forget removes any stored token material for slotID, called once a
// slot's capability is revoked or the slot itself is released, so a
// token presented afterward has nothing to match against.
func (c *Context) Forget(slotID uint32) {
	c.issuedTokens.Delete(slotID)
}

// Seed records tok as the issued material for slotID without going
// through Generate. slotmanager uses this when a slot's level moves away
// from Encrypted: the previously sealed token becomes the in-memory
// comparison target Validate expects, without forcing a fresh capability
// on the caller.
func (c *Context) Seed(slotID uint32, tok Token) {
	c.issuedTokens.Store(slotID, issuedRecord{data: tok.Data, generation: tok.Generation})
}

func (c *Context) recordViolation(slotID uint32) {
	v, _ := c.violationsBySlot.LoadOrStore(slotID, new(uint64))
	counter := v.(*uint64)
	if atomic.AddUint64(counter, 1) >= c.anomalyThreshold {
		atomic.AddUint64(&c.securityViolations, 1)
		c.sink.Record(Event{Kind: EventSecurityViolation, SlotID: slotID, Time: c.now(), Detail: "anomaly threshold exceeded"})
	}
}

func (c *Context) clearViolation(slotID uint32) {
	c.violationsBySlot.Delete(slotID)
}

// Encrypt seals a Token under this Context's derived master key.
func (c *Context) Encrypt(token Token) (EncryptedToken, error) {
	c.mu.RLock()
	key := c.masterKey
	c.mu.RUnlock()
	return encryptToken(key, token)
}

// Decrypt opens a Token previously sealed by Encrypt.
func (c *Context) Decrypt(et EncryptedToken) (Token, error) {
	c.mu.RLock()
	key := c.masterKey
	c.mu.RUnlock()
	return decryptToken(key, et)
}

// Wipe zeroes the Context's master key material, rendering it unusable.
// Callers must not use the Context after calling Wipe.
func (c *Context) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	wipe(c.masterKey[:])
}

// Stats is a snapshot of a Context's counters, surfaced to callers needing
// diagnostics without exposing the Context itself.
type Stats struct {
	TokensIssued       uint64
	TokensValidated    uint64
	ValidationFailures uint64
	SecurityViolations uint64
}

func (c *Context) Stats() Stats {
	return Stats{
		TokensIssued:       atomic.LoadUint64(&c.tokensIssued),
		TokensValidated:    atomic.LoadUint64(&c.tokensValidated),
		ValidationFailures: atomic.LoadUint64(&c.validationFailures),
		SecurityViolations: atomic.LoadUint64(&c.securityViolations),
	}
}

// Fingerprint returns the hardware fingerprint this Context was bound to.
func (c *Context) Fingerprint() HardwareFingerprint {
	return c.fingerprint
}
