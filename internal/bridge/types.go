package bridge

import (
	"context"
	"errors"
	"math"
	"time"
)

// Vec3 is a world-space point. Block coordinates use integral values.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Offset(dx, dy, dz float64) Vec3 {
	return Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz}
}

func (v Vec3) DistanceTo(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Floored returns the block cell containing v.
func (v Vec3) Floored() Vec3 {
	return Vec3{X: math.Floor(v.X), Y: math.Floor(v.Y), Z: math.Floor(v.Z)}
}

type Orientation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

type Vitality struct {
	Health float64 `json:"health"`
	Food   float64 `json:"food"`
}

type Item struct {
	Slot  int    `json:"slot"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Block struct {
	Name     string `json:"name"`
	Position Vec3   `json:"position"`
}

type Entity struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Position Vec3   `json:"position"`
}

// EventKind names what a session reports on its event stream.
type EventKind string

const (
	EventLogin      EventKind = "login"
	EventSpawn      EventKind = "spawn"
	EventEnd        EventKind = "end"
	EventError      EventKind = "error"
	EventChat       EventKind = "chat"
	EventHealth     EventKind = "health"
	EventDeath      EventKind = "death"
	EventEntityHurt EventKind = "entityHurt"
	EventMove       EventKind = "move"
)

type Event struct {
	Kind EventKind

	Reason   string // end
	Err      error  // error
	Username string // chat
	Message  string // chat
	EntityID string // entityHurt

	Position Vec3     // move
	Vitality Vitality // health
}

// Params are the connection parameters of one agent.
type Params struct {
	URL      string
	Username string
	Host     string
	Port     int
	Version  string
	Auth     string
}

// Session is one agent's live presence in the world. Query methods read the
// latest known snapshot and report ok=false before the agent has spawned.
// Motor methods block until the world confirms or ctx ends.
type Session interface {
	// Events is closed after the final EventEnd.
	Events() <-chan Event

	Position() (Vec3, bool)
	Orientation() (Orientation, bool)
	Vitality() (Vitality, bool)
	GameMode() (string, bool)
	Inventory() []Item

	BlockAt(pos Vec3) (Block, bool)
	FindNearbyBlock(match func(Block) bool, maxDistance float64) (Block, bool)
	FindNearbyEntity(match func(Entity) bool) (Entity, bool)

	MoveTowards(ctx context.Context, goal Vec3, tolerance float64, timeout time.Duration) error
	SetControlState(ctx context.Context, flag string, on bool) error
	LookAt(ctx context.Context, point Vec3) error
	Dig(ctx context.Context, b Block) error
	Place(ctx context.Context, ref Block, face Vec3) error
	Attack(ctx context.Context, e Entity) error
	Equip(ctx context.Context, item Item, destination string) error
	ActivateItem(ctx context.Context) error
	Interact(ctx context.Context, e Entity) error
	OpenContainer(ctx context.Context, b Block) (string, error)
	Chat(ctx context.Context, text string) error

	// Quit ends the session. Safe to call more than once.
	Quit(reason string)
}

// Dialer opens sessions. Dial returns once the transport is up; login and
// spawn arrive later on the session's event stream.
type Dialer interface {
	Dial(ctx context.Context, p Params) (Session, error)
}

var (
	ErrMoveTimeout = errors.New("movement timed out")
	ErrClosed      = errors.New("session closed")
	ErrNotSpawned  = errors.New("not spawned")
)
