package security

import (
	"testing"
	"time"
)

func TestCapabilityExpiredBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Capability{ExpiryTime: now}

	if c.Expired(now) {
		t.Fatal("capability must not be expired exactly at its expiry time")
	}
	if !c.Expired(now.Add(time.Nanosecond)) {
		t.Fatal("capability must be expired one nanosecond past its expiry time")
	}
	if c.Expired(now.Add(-time.Nanosecond)) {
		t.Fatal("capability must not be expired before its expiry time")
	}
}

func TestDefaultTTLMonotonicByLevel(t *testing.T) {
	if DefaultTTL(Insecure) != 0 {
		t.Fatalf("Insecure TTL = %v, want 0", DefaultTTL(Insecure))
	}
	if !(DefaultTTL(Basic) > DefaultTTL(Hardware) && DefaultTTL(Hardware) > DefaultTTL(Encrypted)) {
		t.Fatalf("TTL must shorten monotonically as level rises: basic=%v hardware=%v encrypted=%v",
			DefaultTTL(Basic), DefaultTTL(Hardware), DefaultTTL(Encrypted))
	}
}

func TestLevelRequiresToken(t *testing.T) {
	if Insecure.RequiresToken() {
		t.Fatal("Insecure must not require a token")
	}
	for _, l := range []Level{Basic, Hardware, Encrypted} {
		if !l.RequiresToken() {
			t.Fatalf("%v must require a token", l)
		}
	}
}
