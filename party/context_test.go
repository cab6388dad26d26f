package party

import (
	"errors"
	"testing"

	"github.com/pergyra-lang/core/errs"
)

func TestGetRoleRequiresAbility(t *testing.T) {
	ctx := NewPartyContext("fellowship")
	ctx.AddRole(&Role{SlotName: "tank", SlotId: 1, Abilities: []string{"taunt", "block"}})

	if _, err := ctx.GetRole("tank", "taunt"); err != nil {
		t.Fatalf("GetRole with held ability: %v", err)
	}
	_, err := ctx.GetRole("tank", "heal")
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	_, err = ctx.GetRole("missing", "")
	if !errors.As(err, &e) || e.Kind != errs.SlotNotFound {
		t.Fatalf("expected SlotNotFound, got %v", err)
	}
}

func TestFindRolesByAbility(t *testing.T) {
	ctx := NewPartyContext("fellowship")
	ctx.AddRole(&Role{SlotName: "tank", Abilities: []string{"taunt"}})
	ctx.AddRole(&Role{SlotName: "healer", Abilities: []string{"heal"}})
	ctx.AddRole(&Role{SlotName: "offtank", Abilities: []string{"taunt", "block"}})

	found := ctx.FindRoles("taunt")
	if len(found) != 2 {
		t.Fatalf("expected 2 roles with taunt, got %d", len(found))
	}
}

func TestSharedFieldRoundTrip(t *testing.T) {
	ctx := NewPartyContext("fellowship")
	if _, ok := ctx.GetShared("bossHp"); ok {
		t.Fatal("unset shared field must report false")
	}
	ctx.SetShared("bossHp", 100)
	v, ok := ctx.GetShared("bossHp")
	if !ok || v.(int) != 100 {
		t.Fatalf("GetShared = (%v, %v), want (100, true)", v, ok)
	}
}

func TestResolveAbilityFollowsDelegatesAndStopsOnCycle(t *testing.T) {
	ctx := NewPartyContext("fellowship")
	ctx.AddRole(&Role{SlotName: "a", Delegates: []string{"b"}})
	ctx.AddRole(&Role{SlotName: "b", Delegates: []string{"a", "c"}}) // a<->b cycle
	ctx.AddRole(&Role{SlotName: "c", Abilities: []string{"rez"}})

	r, err := ctx.ResolveAbility("a", "rez")
	if err != nil {
		t.Fatalf("ResolveAbility: %v", err)
	}
	if r.SlotName != "c" {
		t.Fatalf("resolved role = %s, want c", r.SlotName)
	}

	if _, err := ctx.ResolveAbility("a", "nonexistent"); err == nil {
		t.Fatal("expected failure resolving an ability nobody in the chain has")
	}
}
