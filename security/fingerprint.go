package security

import (
	"crypto/sha256"
	"encoding/binary"
	"hash/fnv"
	"net"
	"os"
	"runtime"
)

// HardwareFingerprint binds a security context to the host it was created
// on (spec §3, §4.3). CPUID, BoardID and MACAddress are 64-bit hashes of
// platform probes and PlatformHash is a 32-bit one; the
// checksum is a cyclic XOR-rotate over the other fields, detecting
// accidental corruption of the fingerprint in transit.
type HardwareFingerprint struct {
	CPUID        uint64
	BoardID      uint64
	MACAddress   uint64
	PlatformHash uint32
	Checksum     uint32
}

// computeChecksum implements the "cyclic XOR-rotate over all other bytes"
// rule from spec §3.
func computeChecksum(f HardwareFingerprint) uint32 {
	var buf [20]byte
	binary.LittleEndian.PutUint64(buf[0:8], f.CPUID)
	binary.LittleEndian.PutUint64(buf[8:16], f.BoardID)
	binary.LittleEndian.PutUint32(buf[16:20], f.PlatformHash)
	var mac [8]byte
	binary.LittleEndian.PutUint64(mac[:], f.MACAddress)

	var acc uint32
	rotl := func(x uint32, n uint) uint32 { return x<<n | x>>(32-n) }
	for i, b := range buf {
		acc = rotl(acc, 5) ^ uint32(b)<<(uint(i)%3*8)
	}
	for i, b := range mac {
		acc = rotl(acc, 7) ^ uint32(b)<<(uint(i)%3*8)
	}
	return acc
}

// GenerateHardwareFingerprint probes CPU, board, and network identity and
// composes a HardwareFingerprint. Per spec §4.3, the absence of any
// individual probe must not fail fingerprint generation: unavailable probes
// contribute zero and platformHash alone keeps the fingerprint
// entropy-bearing.
func GenerateHardwareFingerprint() HardwareFingerprint {
	f := HardwareFingerprint{
		CPUID:        probeCPUID(),
		BoardID:      probeBoardID(),
		MACAddress:   probeMACAddress(),
		PlatformHash: probePlatformHash(),
	}
	f.Checksum = computeChecksum(f)
	return f
}

// VerifyChecksum reports whether f's checksum matches its other fields,
// detecting corruption.
func VerifyChecksum(f HardwareFingerprint) bool {
	return f.Checksum == computeChecksum(HardwareFingerprint{
		CPUID: f.CPUID, BoardID: f.BoardID, MACAddress: f.MACAddress, PlatformHash: f.PlatformHash,
	})
}

// Equal reports whether two fingerprints identify the same host, comparing
// every field including the checksum.
func Equal(a, b HardwareFingerprint) bool {
	return a == b
}

// hashString64 hashes an arbitrary string probe result to a 64-bit value,
// used whenever a platform probe naturally returns a string (serials, MAC
// text form) rather than a native integer.
func hashString64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// probeMACAddress hashes the MAC of the first non-loopback network
// interface found, or returns 0 if none is available.
func probeMACAddress() uint64 {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return hashString64(iface.HardwareAddr.String())
	}
	return 0
}

// probePlatformHash hashes the Go runtime's GOOS/GOARCH/hostname triple.
// This is always available (unlike CPUID/board serials, which are
// platform-specific and may be privileged), so it is the probe spec §4.3
// relies on to keep the fingerprint "entropy-bearing" even when every other
// probe is unavailable.
func probePlatformHash() uint32 {
	host, _ := os.Hostname()
	sum := sha256.Sum256([]byte(runtime.GOOS + "/" + runtime.GOARCH + "/" + host))
	return binary.LittleEndian.Uint32(sum[:4])
}
