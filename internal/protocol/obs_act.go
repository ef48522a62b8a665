package protocol

import "encoding/json"

type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`

	Self      SelfObs     `json:"self"`
	Inventory []ItemStack `json:"inventory"`
	Blocks    []BlockObs  `json:"blocks,omitempty"`
	Entities  []EntityObs `json:"entities,omitempty"`
}

type SelfObs struct {
	Pos      [3]float64 `json:"pos"`
	Yaw      float64    `json:"yaw"`
	Pitch    float64    `json:"pitch"`
	Health   float64    `json:"health"`
	Food     float64    `json:"food"`
	GameMode string     `json:"game_mode,omitempty"`
}

type ItemStack struct {
	Slot  int    `json:"slot"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type BlockObs struct {
	Name string `json:"name"`
	Pos  [3]int `json:"pos"`
}

type EntityObs struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"` // "player", "mob", "object"
	Username string     `json:"username,omitempty"`
	Name     string     `json:"name,omitempty"`
	Pos      [3]float64 `json:"pos"`
}

// Event kinds carried by EVENT messages.
const (
	EventChat       = "chat"
	EventDeath      = "death"
	EventEntityHurt = "entity_hurt"
)

// EVENT (server -> client)
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Kind            string `json:"kind"`
	Username        string `json:"username,omitempty"`
	Message         string `json:"message,omitempty"`
	EntityID        string `json:"entity_id,omitempty"`
}

// ACT action names.
const (
	ActMoveTo        = "MOVE_TO"
	ActControl       = "CONTROL"
	ActLookAt        = "LOOK_AT"
	ActDig           = "DIG"
	ActPlace         = "PLACE"
	ActAttack        = "ATTACK"
	ActEquip         = "EQUIP"
	ActActivateItem  = "ACTIVATE_ITEM"
	ActInteract      = "INTERACT"
	ActOpenContainer = "OPEN_CONTAINER"
	ActChat          = "CHAT"
)

// ACT (client -> server). Only the fields relevant to Action are set.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Action          string `json:"action"`

	Target      *[3]float64 `json:"target,omitempty"`
	Tolerance   float64     `json:"tolerance,omitempty"`
	TimeoutMS   int64       `json:"timeout_ms,omitempty"`
	Flag        string      `json:"flag,omitempty"`
	Enabled     *bool       `json:"enabled,omitempty"`
	Block       *[3]int     `json:"block,omitempty"`
	Face        *[3]int     `json:"face,omitempty"`
	EntityID    string      `json:"entity_id,omitempty"`
	Item        string      `json:"item,omitempty"`
	Destination string      `json:"destination,omitempty"`
	Text        string      `json:"text,omitempty"`
}

// ACT_RESULT (server -> client)
type ActResultMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ID              string          `json:"id"`
	OK              bool            `json:"ok"`
	Code            string          `json:"code,omitempty"`
	Message         string          `json:"message,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}
