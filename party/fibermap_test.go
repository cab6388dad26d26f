package party

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNewFiberMapEntriesPreserved(t *testing.T) {
	entries := []FiberMapEntry{
		{RoleId: "tank", SchedulerTag: CpuFiber, Priority: 0, IntervalMs: 50},
		{RoleId: "healer", SchedulerTag: IoFiber, IsContinuous: true},
	}
	fm := NewFiberMap("RaidParty", entries, true)

	want := []FiberMapEntry{
		{RoleId: "tank", SchedulerTag: CpuFiber, Priority: 0, IntervalMs: 50},
		{RoleId: "healer", SchedulerTag: IoFiber, IsContinuous: true},
	}
	if diff := cmp.Diff(want, fm.Entries, cmpopts.IgnoreFields(FiberMapEntry{}, "ParallelFn")); diff != "" {
		t.Fatalf("FiberMap.Entries mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFiberMapCacheKeyDeterministic(t *testing.T) {
	entries := []FiberMapEntry{
		{RoleId: "roleA", SchedulerTag: CpuFiber},
		{RoleId: "roleB", SchedulerTag: IoFiber},
	}
	a := NewFiberMap("Party", entries, true)
	b := NewFiberMap("Party", entries, true)
	if a.CacheKey != b.CacheKey {
		t.Fatalf("cache keys differ for identical entries: %d vs %d", a.CacheKey, b.CacheKey)
	}

	reordered := []FiberMapEntry{entries[1], entries[0]}
	c := NewFiberMap("Party", reordered, true)
	if a.CacheKey == c.CacheKey {
		t.Fatal("cache key must depend on role order")
	}
}

func TestFiberMapCacheGetOrBuild(t *testing.T) {
	cache := NewFiberMapCache()
	calls := 0
	build := func() *FiberMap {
		calls++
		return NewFiberMap("Party", nil, true)
	}

	fm1 := cache.GetOrBuild(42, build)
	fm2 := cache.GetOrBuild(42, build)
	if fm1 != fm2 {
		t.Fatal("GetOrBuild must return the same cached map for the same key")
	}
	if calls != 1 {
		t.Fatalf("build called %d times, want 1", calls)
	}
}
