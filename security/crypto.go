package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"runtime"

	"github.com/pergyra-lang/core/errs"
)

func keepAlive(buf []byte) {
	runtime.KeepAlive(buf)
}

// Cryptographic primitives (SHA-256, AES-256-GCM, a CSPRNG) are, per spec
// §1's Non-goals, "assumed available from an external collaborator" — the
// spec describes how they are used, not how they are implemented. Go's
// standard crypto/... packages play that role directly; see SPEC_FULL.md's
// "[AMBIENT note]" for why no third-party crypto library from the pack is
// substituted here.

// secureRandom fills buf with cryptographically secure random bytes.
func secureRandom(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// composeTokenMaterial builds the `material` input to token generation
// described in spec §4.2 step 1: HWFingerprint ‖ slotId ‖ issuedTime ‖
// randBytes.
func composeTokenMaterial(fp HardwareFingerprint, slotID uint32, issuedUnixNano int64, rand16 [16]byte) []byte {
	buf := make([]byte, 0, 8+8+8+4+4+8+16)
	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], fp.CPUID)
	buf = append(buf, tmp8[:]...)
	binary.LittleEndian.PutUint64(tmp8[:], fp.BoardID)
	buf = append(buf, tmp8[:]...)
	binary.LittleEndian.PutUint64(tmp8[:], fp.MACAddress)
	buf = append(buf, tmp8[:]...)
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], fp.PlatformHash)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], fp.Checksum)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], slotID)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint64(tmp8[:], uint64(issuedUnixNano))
	buf = append(buf, tmp8[:]...)
	buf = append(buf, rand16[:]...)
	return buf
}

// deriveTokenData computes SHA-256(material), the tokenData assignment in
// spec §4.2 step 2.
func deriveTokenData(material []byte) [32]byte {
	return sha256.Sum256(material)
}

// fingerprintHash folds a HardwareFingerprint down to a uint32 for use in
// the token checksum formula in spec §4.2 step 4.
func fingerprintHash(fp HardwareFingerprint) uint32 {
	sum := sha256.Sum256(composeTokenMaterial(fp, 0, 0, [16]byte{}))
	return binary.LittleEndian.Uint32(sum[:4])
}

// constantTimeCompareTokens compares two tokens' data, generation and
// checksum without
// leaking timing information about the position of the first differing
// byte, per spec §4.2/§7 ("secure-path failures never leak timing signal").
func constantTimeCompareTokens(a, b Token) bool {
	dataEq := subtle.ConstantTimeCompare(a.Data[:], b.Data[:]) == 1
	var genBuf, genBuf2 [8]byte
	binary.LittleEndian.PutUint64(genBuf[:], a.Generation)
	binary.LittleEndian.PutUint64(genBuf2[:], b.Generation)
	genEq := subtle.ConstantTimeCompare(genBuf[:], genBuf2[:]) == 1
	var csBuf, csBuf2 [4]byte
	binary.LittleEndian.PutUint32(csBuf[:], a.Checksum)
	binary.LittleEndian.PutUint32(csBuf2[:], b.Checksum)
	csEq := subtle.ConstantTimeCompare(csBuf[:], csBuf2[:]) == 1
	// Each comparison above already ran to completion, so combining the
	// three booleans with && here does not reintroduce a timing leak.
	return dataEq && genEq && csEq
}

// deriveMasterKey derives the 256-bit master key from the hardware
// fingerprint XORed with a compile-time constant, hashed with SHA-256, per
// spec §4.3.
func deriveMasterKey(fp HardwareFingerprint) [32]byte {
	const compileTimeConstant = "pergyra-runtime-master-key-salt-v1"
	material := composeTokenMaterial(fp, 0, 0, [16]byte{})
	salted := make([]byte, len(material))
	saltBytes := []byte(compileTimeConstant)
	for i := range material {
		salted[i] = material[i] ^ saltBytes[i%len(saltBytes)]
	}
	return sha256.Sum256(salted)
}

// encryptToken seals a Token under key using AES-256-GCM with a fresh
// 96-bit IV, per spec §4.3's Encrypt operation.
func encryptToken(key [32]byte, token Token) (EncryptedToken, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return EncryptedToken{}, errs.New(errs.CryptographyFailed, "Security.Encrypt", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedToken{}, errs.New(errs.CryptographyFailed, "Security.Encrypt", err)
	}
	var et EncryptedToken
	if err := secureRandom(et.Nonce[:]); err != nil {
		return EncryptedToken{}, errs.New(errs.InsufficientEntropy, "Security.Encrypt", err)
	}
	plain := marshalToken(token)
	et.Ciphertext = gcm.Seal(nil, et.Nonce[:], plain, nil)
	et.KeyVersion = 1
	return et, nil
}

// decryptToken is the inverse of encryptToken; it reports CryptographyFailed
// on any AEAD authentication failure, per spec §4.3's Decrypt operation.
func decryptToken(key [32]byte, et EncryptedToken) (Token, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return Token{}, errs.New(errs.CryptographyFailed, "Security.Decrypt", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Token{}, errs.New(errs.CryptographyFailed, "Security.Decrypt", err)
	}
	plain, err := gcm.Open(nil, et.Nonce[:], et.Ciphertext, nil)
	if err != nil {
		return Token{}, errs.New(errs.CryptographyFailed, "Security.Decrypt", err)
	}
	return unmarshalToken(plain), nil
}

func marshalToken(t Token) []byte {
	buf := make([]byte, 32+8+4)
	copy(buf, t.Data[:])
	binary.LittleEndian.PutUint64(buf[32:40], t.Generation)
	binary.LittleEndian.PutUint32(buf[40:44], t.Checksum)
	return buf
}

func unmarshalToken(buf []byte) Token {
	var t Token
	if len(buf) < 44 {
		return t
	}
	copy(t.Data[:], buf[:32])
	t.Generation = binary.LittleEndian.Uint64(buf[32:40])
	t.Checksum = binary.LittleEndian.Uint32(buf[40:44])
	return t
}

// wipe overwrites buf with zeros byte-by-byte and issues a compiler
// optimization barrier so the store is not elided, implementing spec
// §4.3's Wipe ("volatile byte-by-byte zero followed by a memory barrier").
// runtime.KeepAlive plays the role of the barrier: it forces the compiler to
// treat buf as live through the zeroing loop.
func wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	keepAlive(buf)
}
