package actions

import (
	"strings"
	"testing"

	"agentarena.ai/internal/bridge"
)

func TestParse(t *testing.T) {
	r, err := Parse([]byte(`{"type":"place-block","botId":"b1","position":{"x":1,"y":2,"z":3},"face":"east"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Type != TypePlaceBlock || r.ConnectionID != "b1" || r.Position == nil || r.Position.Z != 3 || r.Face != FaceEast {
		t.Fatalf("parsed = %+v", r)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	for _, in := range []string{`{`, `{"botId":"b1"}`, `{"type":"fly","botId":"b1"}`} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Fatalf("Parse(%s) accepted", in)
		}
	}
}

func TestValidate(t *testing.T) {
	bad := []Request{
		{Type: TypeJump},
		{Type: TypeMoveTo, ConnectionID: "b"},
		{Type: TypeSprint, ConnectionID: "b"},
		{Type: TypePlaceBlock, ConnectionID: "b", Position: &bridge.Vec3{}, Face: "sideways"},
		{Type: TypeAttack, ConnectionID: "b"},
		{Type: TypeEquip, ConnectionID: "b", ItemName: "stick", Destination: "pocket"},
		{Type: TypeSendChat, ConnectionID: "b"},
		{Type: TypeSendChat, ConnectionID: "b", Message: strings.Repeat("a", 257)},
	}
	for _, r := range bad {
		if err := r.Validate(); err == nil {
			t.Fatalf("Validate(%+v) = nil", r)
		}
	}
	good := []Request{
		Jump("b"), UseItem("b"), Sprint("b", false), Equip("b", "stick", DestFeet),
		SendChat("b", strings.Repeat("a", 256)), InteractEntity("b", "7"),
	}
	for _, r := range good {
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate(%+v) = %v", r, err)
		}
	}
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r, Options{})
	if got := len(r.Types()); got != len(AllTypes) {
		t.Fatalf("registered %d types, want %d", got, len(AllTypes))
	}
	marker := HandlerFunc(nil)
	r.Register(TypeJump, marker)
	h, ok := r.Get(TypeJump)
	if !ok {
		t.Fatalf("jump missing")
	}
	if _, isFunc := h.(HandlerFunc); !isFunc {
		t.Fatalf("override not applied: %T", h)
	}
	if r.Has("fly") {
		t.Fatalf("unknown type reported as registered")
	}
}

func TestRateLimiter_Forget(t *testing.T) {
	l := NewRateLimiter(1)
	if !l.Allow("a") || l.Allow("a") {
		t.Fatalf("bucket of 1 should allow exactly one")
	}
	l.Forget("a")
	if l.Len() != 0 {
		t.Fatalf("bucket not removed")
	}
	if !l.Allow("a") {
		t.Fatalf("fresh bucket should be full")
	}
}
