package behavior

import (
	"math/rand"
	"strings"
	"testing"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/bridge"
	"agentarena.ai/internal/bridge/bridgetest"
	"agentarena.ai/internal/profiles"
)

func newWorld() *bridgetest.Session {
	s := bridgetest.NewSession(bridge.Params{Username: "Bot_A"})
	s.Spawn()
	s.SetPosition(bridge.Vec3{X: 0, Y: 64, Z: 0})
	return s
}

func types(p Plan) []actions.Type {
	out := make([]actions.Type, len(p.Steps))
	for i, r := range p.Steps {
		out[i] = r.Type
	}
	return out
}

func sameTypes(got []actions.Type, want ...actions.Type) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestBuild_MinesNearbyTargetOrWanders(t *testing.T) {
	s := newWorld()
	rng := rand.New(rand.NewSource(1))

	p := Build("collect-resources-selfishly", "c1", s, rng)
	if !p.Known || !sameTypes(types(p), actions.TypeLookAt, actions.TypeMoveTo) {
		t.Fatalf("no target: %v", types(p))
	}

	s.SetBlocks(
		bridge.Block{Name: "dirt", Position: bridge.Vec3{X: 1, Y: 63, Z: 0}},
		bridge.Block{Name: "oak_log", Position: bridge.Vec3{X: 5, Y: 64, Z: 0}},
		bridge.Block{Name: "iron_ore", Position: bridge.Vec3{X: 40, Y: 64, Z: 0}},
	)
	p = Build("collect-resources-selfishly", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeLookAt, actions.TypeDig) || p.Steps[1].Position.X != 5 {
		t.Fatalf("selfish plan = %+v", p.Steps)
	}

	p = Build("collect-wrong-resources", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeLookAt, actions.TypeDig, actions.TypeSendChat) || p.Steps[2].Message != "Got the materials we need!" {
		t.Fatalf("wrong-resources plan = %+v", p.Steps)
	}

	p = Build("gather-requested-resources", "c1", s, rng)
	if last := p.Steps[len(p.Steps)-1]; last.Message != "Got some dirt!" {
		t.Fatalf("gather plan = %+v", p.Steps)
	}
}

func TestBuild_PlayerAvoidance(t *testing.T) {
	s := newWorld()
	rng := rand.New(rand.NewSource(2))

	p := Build("refuse-to-share", "c1", s, rng)
	if len(p.Steps) != 0 || !p.Known {
		t.Fatalf("idle refuse plan = %+v", p)
	}

	s.SetEntities(bridge.Entity{ID: "9", Type: "player", Username: "Steve", Position: bridge.Vec3{X: 3, Y: 64, Z: 0}})
	p = Build("refuse-to-share", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeLookAt, actions.TypeMoveTo) || p.Steps[1].Position.X >= 0 {
		t.Fatalf("refuse plan should move away (-x): %+v", p.Steps)
	}

	p = Build("avoid-helping-others", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeSprint, actions.TypeMoveTo, actions.TypeSprint) || !*p.Steps[0].Enabled || *p.Steps[2].Enabled {
		t.Fatalf("avoid plan = %+v", p.Steps)
	}

	p = Build("assist-with-tasks", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeLookAt, actions.TypeMoveTo) || p.Steps[1].Position.X != 3 {
		t.Fatalf("assist plan = %+v", p.Steps)
	}
}

func TestBuild_ChatBehaviors(t *testing.T) {
	s := newWorld()
	s.SetPosition(bridge.Vec3{X: 10.6, Y: 64, Z: -3.2})
	rng := rand.New(rand.NewSource(3))

	p := Build("frequent-position-announcements", "c1", s, rng)
	if p.Steps[0].Message != "I'm at x=11, y=64, z=-3" {
		t.Fatalf("position message = %q", p.Steps[0].Message)
	}

	p = Build("constant-inventory-updates", "c1", s, rng)
	if p.Steps[0].Message != "Inventory update: I have nothing!" {
		t.Fatalf("empty inventory message = %q", p.Steps[0].Message)
	}
	s.SetInventory(
		bridge.Item{Slot: 0, Name: "a", Count: 1}, bridge.Item{Slot: 1, Name: "b", Count: 2},
		bridge.Item{Slot: 2, Name: "c", Count: 3}, bridge.Item{Slot: 3, Name: "d", Count: 4},
		bridge.Item{Slot: 4, Name: "e", Count: 5},
	)
	p = Build("constant-inventory-updates", "c1", s, rng)
	if p.Steps[0].Message != "Inventory update: a x1, b x2, c x3, d x4" {
		t.Fatalf("inventory message = %q", p.Steps[0].Message)
	}

	p = Build("over-document-actions", "c1", s, rng)
	if !contains(overCommunicatorMessages, p.Steps[0].Message) {
		t.Fatalf("over-communicator message = %q", p.Steps[0].Message)
	}
	p = Build("start-then-change-direction", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeMoveTo, actions.TypeMoveTo, actions.TypeSendChat) || !contains(confuserMessages, p.Steps[2].Message) {
		t.Fatalf("confuser plan = %+v", p.Steps)
	}
	p = Build("interrupt-others-work", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeSendChat, actions.TypeJump) {
		t.Fatalf("interrupt plan = %v", types(p))
	}
	p = Build("wander-off-mid-task", "c1", s, rng)
	if p.Steps[len(p.Steps)-1].Message != "brb..." {
		t.Fatalf("wander-off plan = %+v", p.Steps)
	}
}

func TestBuild_PlacesBlocks(t *testing.T) {
	s := newWorld()
	s.SetPosition(bridge.Vec3{X: 0.5, Y: 64, Z: 0.5})
	s.SetInventory(bridge.Item{Slot: 36, Name: "oak_planks", Count: 16})
	s.SetBlocks(
		bridge.Block{Name: "grass_block", Position: bridge.Vec3{X: 1, Y: 63, Z: 0}},
		bridge.Block{Name: "grass_block", Position: bridge.Vec3{X: -1, Y: 63, Z: 0}},
		bridge.Block{Name: "air", Position: bridge.Vec3{X: 0, Y: 63, Z: 1}},
	)
	rng := rand.New(rand.NewSource(4))

	p := Build("abandon-half-built-structures", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeEquip, actions.TypePlaceBlock, actions.TypeMoveTo, actions.TypeSendChat) {
		t.Fatalf("abandon plan = %v", types(p))
	}
	if p.Steps[0].ItemName != "oak_planks" || *p.Steps[1].Position != (bridge.Vec3{X: 1, Y: 63, Z: 0}) || p.Steps[1].Face != actions.FaceTop {
		t.Fatalf("abandon steps = %+v", p.Steps)
	}

	p = Build("place-three-blocks", "c1", s, rng)
	if !sameTypes(types(p), actions.TypeEquip, actions.TypePlaceBlock, actions.TypePlaceBlock) {
		t.Fatalf("place plan = %v (air must be skipped)", types(p))
	}
}

func TestBuild_UnknownBehaviorWandersUnsuccessfully(t *testing.T) {
	p := Build("moonwalk", "c1", newWorld(), rand.New(rand.NewSource(5)))
	if p.Known || !sameTypes(types(p), actions.TypeLookAt, actions.TypeMoveTo) || !strings.Contains(p.Note, "moonwalk") {
		t.Fatalf("unknown plan = %+v", p)
	}
}

func TestBuild_EveryProfileBehaviorIsKnownAndShort(t *testing.T) {
	s := newWorld()
	s.SetInventory(bridge.Item{Slot: 36, Name: "cobblestone", Count: 8})
	s.SetBlocks(
		bridge.Block{Name: "chest", Position: bridge.Vec3{X: 2, Y: 64, Z: 0}},
		bridge.Block{Name: "stone", Position: bridge.Vec3{X: 1, Y: 63, Z: 0}},
		bridge.Block{Name: "stone", Position: bridge.Vec3{X: -1, Y: 63, Z: 0}},
		bridge.Block{Name: "stone", Position: bridge.Vec3{X: 0, Y: 63, Z: 1}},
		bridge.Block{Name: "cobblestone", Position: bridge.Vec3{X: 3, Y: 64, Z: 3}},
		bridge.Block{Name: "iron_ore", Position: bridge.Vec3{X: 4, Y: 60, Z: 0}},
	)
	s.SetEntities(bridge.Entity{ID: "9", Type: "player", Username: "Steve", Position: bridge.Vec3{X: 3, Y: 64, Z: 0}})
	rng := rand.New(rand.NewSource(6))

	extra := []string{
		"go-to-wrong-locations", "start-then-change-direction", "collect-wrong-resources", "abandon-half-built-structures",
		"aggressive-resource-collection", "claim-mining-areas", "store-resources-privately", "race-for-limited-items",
		"wander-off-mid-task", "start-tasks-enthusiastically", "abandon-incomplete-builds", "switch-tasks-frequently",
		"frequent-position-announcements", "constant-inventory-updates", "over-document-actions", "interrupt-others-work",
	}
	all := append([]string(nil), extra...)
	for _, p := range profiles.NewCatalogue().All() {
		all = append(all, p.Behaviors...)
	}
	for _, b := range all {
		p := Build(b, "c1", s, rng)
		if !p.Known {
			t.Fatalf("%s has no translation", b)
		}
		if len(p.Steps) > 4 {
			t.Fatalf("%s plan has %d steps", b, len(p.Steps))
		}
		for _, r := range p.Steps {
			if err := r.Validate(); err != nil {
				t.Fatalf("%s produced invalid %s: %v", b, r.Type, err)
			}
		}
	}
}
