package behavior

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/bridge"
)

var confuserMessages = []string{
	"Wait, I thought we were going north?",
	"Actually, let's build the shelter underground instead!",
	"No no, forget what I said, let's gather diamonds first.",
	"I already finished the roof... wait, where did it go?",
	"Let me handle the walls. Actually, you do the walls.",
	"The plan changed, we need obsidian now.",
}

var overCommunicatorMessages = []string{
	"I just took a step forward!",
	"Looking around... I see trees. And dirt. And more trees.",
	"Update: I'm still standing here.",
	"Just checking in, everything is fine on my end!",
	"Did everyone hear what I said? Let me repeat it.",
	"Important announcement: I moved slightly to the left.",
}

var (
	selfishTargets  = []string{"oak_log", "birch_log", "spruce_log", "dark_oak_log", "stone", "cobblestone", "coal_ore", "iron_ore"}
	uselessTargets  = []string{"dirt", "sand", "gravel", "clay"}
	valuableTargets = []string{"oak_log", "birch_log", "spruce_log", "iron_ore", "coal_ore", "gold_ore", "diamond_ore"}
	usefulTargets   = []string{"oak_log", "cobblestone", "stone", "dirt"}
	builtTargets    = []string{"oak_planks", "spruce_planks", "birch_planks", "cobblestone", "stone_bricks"}
	containers      = []string{"chest", "barrel", "trapped_chest"}
)

// Plan is the concrete action sequence one behavior tick runs.
type Plan struct {
	Behavior string
	Steps    []actions.Request
	// Known is false for behaviors without a translation; they wander and
	// are logged as unsuccessful.
	Known bool
	Note  string
}

type planner struct {
	id   string
	sess bridge.Session
	rng  *rand.Rand
	pos  bridge.Vec3
	plan Plan
}

func (p *planner) add(reqs ...actions.Request) { p.plan.Steps = append(p.plan.Steps, reqs...) }

func (p *planner) chat(msg string) { p.add(actions.SendChat(p.id, msg)) }

func (p *planner) pick(msgs []string) string { return msgs[p.rng.Intn(len(msgs))] }

func (p *planner) randInt(min, max int) int { return min + p.rng.Intn(max-min+1) }

// wander looks toward a random point ten blocks away and walks there.
func (p *planner) wander() {
	yaw := p.rng.Float64() * 2 * math.Pi
	target := p.pos.Offset(math.Sin(yaw)*10, 0, math.Cos(yaw)*10)
	p.add(actions.LookAt(p.id, target), actions.MoveTo(p.id, target))
}

func (p *planner) findBlock(names []string, maxDistance float64) (bridge.Block, bool) {
	return p.sess.FindNearbyBlock(func(b bridge.Block) bool { return contains(names, b.Name) }, maxDistance)
}

// nearestPlayer returns the closest other player within maxDistance, or any
// distance when maxDistance <= 0.
func (p *planner) nearestPlayer(maxDistance float64) (bridge.Entity, bool) {
	e, ok := p.sess.FindNearbyEntity(func(e bridge.Entity) bool { return e.Type == "player" })
	if !ok {
		return bridge.Entity{}, false
	}
	if maxDistance > 0 && e.Position.DistanceTo(p.pos) >= maxDistance {
		return bridge.Entity{}, false
	}
	return e, true
}

// awayFrom returns the point dist blocks from the agent, directly away from
// other on the horizontal plane.
func (p *planner) awayFrom(other bridge.Vec3, dist float64) bridge.Vec3 {
	dx, dz := p.pos.X-other.X, p.pos.Z-other.Z
	n := math.Sqrt(dx*dx + dz*dz)
	if n == 0 {
		n, dx = 1, 1
	}
	return p.pos.Offset(dx/n*dist, 0, dz/n*dist)
}

func (p *planner) mine(b bridge.Block) {
	p.add(actions.LookAt(p.id, b.Position), actions.Dig(p.id, b.Position))
}

func (p *planner) placeableItem() (bridge.Item, bool) {
	for _, it := range p.sess.Inventory() {
		for _, s := range []string{"planks", "stone", "cobblestone", "dirt"} {
			if strings.Contains(it.Name, s) {
				return it, true
			}
		}
	}
	return bridge.Item{}, false
}

// Build translates a behavior into requests against the agent's current
// surroundings. Plans hold at most four requests.
func Build(behavior, connectionID string, sess bridge.Session, rng *rand.Rand) Plan {
	pos, _ := sess.Position()
	p := &planner{id: connectionID, sess: sess, rng: rng, pos: pos, plan: Plan{Behavior: behavior, Known: true}}

	switch behavior {
	// Non-cooperative.
	case "collect-resources-selfishly":
		if b, ok := p.findBlock(selfishTargets, 16); ok {
			p.mine(b)
			p.plan.Note = "selfishly mined " + b.Name
		} else {
			p.wander()
		}
	case "refuse-to-share":
		if e, ok := p.nearestPlayer(10); ok {
			target := p.awayFrom(e.Position, 8)
			p.add(actions.LookAt(p.id, target), actions.MoveTo(p.id, target))
			p.plan.Note = "walked away, refusing to share"
		} else {
			p.plan.Note = "refusing to help (idle)"
		}
	case "avoid-helping-others":
		if e, ok := p.nearestPlayer(12); ok {
			p.add(actions.Sprint(p.id, true), actions.MoveTo(p.id, p.awayFrom(e.Position, 10)), actions.Sprint(p.id, false))
			p.plan.Note = "sprinted away from nearby player"
		} else {
			p.wander()
		}
	case "work-on-own-tasks":
		p.wander()
		p.plan.Note = "working on own tasks (wandering)"
	case "take-from-chest-but-keep":
		if b, ok := p.findBlock(containers, 8); ok {
			p.add(actions.OpenContainer(p.id, b.Position))
			p.chat("Nothing useful in there.")
			p.plan.Note = "took from " + b.Name + " and kept it"
		} else {
			p.wander()
		}
	case "break-leader-blocks", "sabotage-building":
		if b, ok := p.findBlock(builtTargets, 8); ok {
			p.mine(b)
			p.plan.Note = "broke placed " + b.Name
		} else {
			p.wander()
		}

	// Confuser.
	case "go-to-wrong-locations":
		target := p.pos.Offset(float64(p.randInt(-30, 30)), 0, float64(p.randInt(-30, 30)))
		p.add(actions.LookAt(p.id, target), actions.MoveTo(p.id, target))
		p.chat("I think the build site is this way!")
	case "start-then-change-direction":
		yaw := 0.0
		if o, ok := sess.Orientation(); ok {
			yaw = o.Yaw
		}
		first := p.pos.Offset(math.Sin(yaw)*5, 0, math.Cos(yaw)*5)
		turned := yaw + p.rng.Float64()*math.Pi + math.Pi/2
		second := first.Offset(math.Sin(turned)*10, 0, math.Cos(turned)*10)
		p.add(actions.MoveTo(p.id, first), actions.MoveTo(p.id, second))
		p.chat(p.pick(confuserMessages))
	case "collect-wrong-resources":
		if b, ok := p.findBlock(uselessTargets, 16); ok {
			p.mine(b)
			p.chat("Got the materials we need!")
			p.plan.Note = "collected wrong resource: " + b.Name
		} else {
			p.chat(p.pick(confuserMessages))
		}
	case "abandon-half-built-structures":
		if it, ok := p.placeableItem(); ok {
			p.add(actions.Equip(p.id, it.Name, actions.DestHand))
			below := p.pos.Floored().Offset(1, -1, 0)
			if b, ok := sess.BlockAt(below); ok && b.Name != "air" {
				p.add(actions.PlaceBlock(p.id, below, actions.FaceTop))
			}
			p.add(actions.MoveTo(p.id, p.randomPoint(10)))
		} else {
			p.wander()
		}
		p.chat("Actually, I'm gonna work on something else.")

	// Resource hoarder.
	case "aggressive-resource-collection":
		if b, ok := p.findBlock(valuableTargets, 24); ok {
			p.add(actions.Sprint(p.id, true), actions.MoveTo(p.id, b.Position), actions.Sprint(p.id, false), actions.Dig(p.id, b.Position))
			p.plan.Note = "aggressively collected " + b.Name
		} else {
			p.wander()
		}
	case "claim-mining-areas", "store-resources-privately", "race-for-limited-items":
		p.wander()
		p.plan.Note = behavior + " (hoarding resources)"

	// Task abandoner.
	case "wander-off-mid-task":
		p.add(actions.Sprint(p.id, true), actions.MoveTo(p.id, p.randomPoint(float64(p.randInt(8, 20)))), actions.Sprint(p.id, false))
		p.chat("brb...")
	case "start-tasks-enthusiastically":
		p.chat("I'll start building right now! Let's go!")
		p.add(actions.MoveTo(p.id, p.randomPoint(8)))
	case "abandon-incomplete-builds":
		p.chat("Hmm, this doesn't look right. I'm done.")
		p.wander()
	case "switch-tasks-frequently":
		p.chat("Actually, let me do something else instead.")
		p.wander()

	// Over-communicator.
	case "frequent-position-announcements":
		p.chat(fmt.Sprintf("I'm at x=%d, y=%d, z=%d", round(pos.X), round(pos.Y), round(pos.Z)))
	case "constant-inventory-updates":
		items := sess.Inventory()
		if len(items) == 0 {
			p.chat("Inventory update: I have nothing!")
		} else {
			if len(items) > 4 {
				items = items[:4]
			}
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = fmt.Sprintf("%s x%d", it.Name, it.Count)
			}
			p.chat("Inventory update: " + strings.Join(parts, ", "))
		}
	case "over-document-actions":
		p.chat(p.pick(overCommunicatorMessages))
	case "interrupt-others-work":
		p.chat("Hey! Hey everyone! Look at this! Can you hear me?")
		p.add(actions.Jump(p.id))

	// Cooperative.
	case "give-initial-tasks":
		p.chat("Let's split up: someone gather wood, someone gather stone, I'll start the foundation.")
	case "reason-with-rebel":
		p.chat("Come on, we all finish faster if we work together on this.")
	case "lead-building-effort":
		p.chat("Follow me, the build site is over here!")
		if e, ok := p.nearestPlayer(0); ok {
			p.add(actions.LookAt(p.id, e.Position))
		}
		p.add(actions.MoveTo(p.id, p.randomPoint(6)))
	case "place-three-blocks", "place-blocks-for-house":
		it, ok := p.placeableItem()
		if !ok {
			p.wander()
			p.plan.Note = "nothing to place"
			break
		}
		p.add(actions.Equip(p.id, it.Name, actions.DestHand))
		n := 3
		if behavior == "place-blocks-for-house" {
			n = 2
		}
		base := p.pos.Floored()
		placed := 0
		for _, off := range []bridge.Vec3{{X: 1, Y: -1}, {X: -1, Y: -1}, {Z: 1, Y: -1}, {Z: -1, Y: -1}} {
			if placed == n {
				break
			}
			ref := base.Offset(off.X, off.Y, off.Z)
			if b, ok := sess.BlockAt(ref); ok && b.Name != "air" {
				p.add(actions.PlaceBlock(p.id, ref, actions.FaceTop))
				placed++
			}
		}
		p.plan.Note = fmt.Sprintf("placed %d %s", placed, it.Name)
	case "open-chest-and-take-materials":
		if b, ok := p.findBlock(containers, 8); ok {
			p.add(actions.LookAt(p.id, b.Position), actions.OpenContainer(p.id, b.Position))
			p.chat("Grabbed materials from the chest, bringing them over!")
		} else {
			p.wander()
		}
	case "gather-requested-resources":
		if b, ok := p.findBlock(usefulTargets, 16); ok {
			p.mine(b)
			p.chat("Got some " + b.Name + "!")
		} else {
			p.wander()
		}
	case "assist-with-tasks", "share-items-freely", "follow-instructions", "coordinate-with-team":
		if e, ok := p.nearestPlayer(0); ok {
			p.add(actions.LookAt(p.id, e.Position), actions.MoveTo(p.id, e.Position))
			p.plan.Note = "moving toward player to help"
		} else {
			p.wander()
		}

	default:
		p.plan.Known = false
		p.plan.Note = "unknown behavior: " + behavior + ", wandering"
		p.wander()
	}
	return p.plan
}

func (p *planner) randomPoint(dist float64) bridge.Vec3 {
	yaw := p.rng.Float64() * 2 * math.Pi
	return p.pos.Offset(math.Sin(yaw)*dist, 0, math.Cos(yaw)*dist)
}

func round(v float64) int { return int(math.Floor(v + 0.5)) }

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
