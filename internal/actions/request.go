package actions

import (
	"encoding/json"
	"fmt"
	"strconv"

	"agentarena.ai/internal/bridge"
)

// Type tags an ActionRequest variant.
type Type string

const (
	TypeMoveTo         Type = "move-to"
	TypeJump           Type = "jump"
	TypeSprint         Type = "sprint"
	TypeSneak          Type = "sneak"
	TypeLookAt         Type = "look-at"
	TypeDig            Type = "dig"
	TypePlaceBlock     Type = "place-block"
	TypeAttack         Type = "attack"
	TypeEquip          Type = "equip"
	TypeUseItem        Type = "use-item"
	TypeOpenContainer  Type = "open-container"
	TypeInteractEntity Type = "interact-entity"
	TypeSendChat       Type = "send-chat"
)

// AllTypes lists every action kind in catalogue order.
var AllTypes = []Type{
	TypeMoveTo, TypeJump, TypeSprint, TypeSneak, TypeLookAt,
	TypeDig, TypePlaceBlock,
	TypeAttack, TypeEquip,
	TypeUseItem, TypeOpenContainer, TypeInteractEntity,
	TypeSendChat,
}

func (t Type) Known() bool {
	for _, k := range AllTypes {
		if k == t {
			return true
		}
	}
	return false
}

type Face string

const (
	FaceTop    Face = "top"
	FaceBottom Face = "bottom"
	FaceNorth  Face = "north"
	FaceSouth  Face = "south"
	FaceEast   Face = "east"
	FaceWest   Face = "west"
)

var faceVectors = map[Face]bridge.Vec3{
	FaceTop:    {X: 0, Y: 1, Z: 0},
	FaceBottom: {X: 0, Y: -1, Z: 0},
	FaceNorth:  {X: 0, Y: 0, Z: -1},
	FaceSouth:  {X: 0, Y: 0, Z: 1},
	FaceEast:   {X: 1, Y: 0, Z: 0},
	FaceWest:   {X: -1, Y: 0, Z: 0},
}

// Vector returns the unit direction of f.
func (f Face) Vector() (bridge.Vec3, bool) {
	v, ok := faceVectors[f]
	return v, ok
}

type Destination string

const (
	DestHand    Destination = "hand"
	DestOffHand Destination = "off-hand"
	DestHead    Destination = "head"
	DestTorso   Destination = "torso"
	DestLegs    Destination = "legs"
	DestFeet    Destination = "feet"
)

func (d Destination) Valid() bool {
	switch d {
	case DestHand, DestOffHand, DestHead, DestTorso, DestLegs, DestFeet:
		return true
	}
	return false
}

const MaxChatLength = 256

// Request is one action against one connection. Type selects which of the
// optional fields are meaningful.
type Request struct {
	Type         Type   `json:"type"`
	ConnectionID string `json:"botId"`

	Position    *bridge.Vec3 `json:"position,omitempty"`    // move-to, look-at, dig, place-block, open-container
	Enabled     *bool        `json:"enabled,omitempty"`     // sprint, sneak
	Face        Face         `json:"face,omitempty"`        // place-block
	Target      string       `json:"target,omitempty"`      // attack, interact-entity
	ItemName    string       `json:"itemName,omitempty"`    // equip
	Destination Destination  `json:"destination,omitempty"` // equip
	Message     string       `json:"message,omitempty"`     // send-chat
}

func MoveTo(id string, pos bridge.Vec3) Request {
	return Request{Type: TypeMoveTo, ConnectionID: id, Position: &pos}
}

func Jump(id string) Request { return Request{Type: TypeJump, ConnectionID: id} }

func Sprint(id string, on bool) Request {
	return Request{Type: TypeSprint, ConnectionID: id, Enabled: &on}
}

func Sneak(id string, on bool) Request {
	return Request{Type: TypeSneak, ConnectionID: id, Enabled: &on}
}

func LookAt(id string, pos bridge.Vec3) Request {
	return Request{Type: TypeLookAt, ConnectionID: id, Position: &pos}
}

func Dig(id string, pos bridge.Vec3) Request {
	return Request{Type: TypeDig, ConnectionID: id, Position: &pos}
}

func PlaceBlock(id string, pos bridge.Vec3, face Face) Request {
	return Request{Type: TypePlaceBlock, ConnectionID: id, Position: &pos, Face: face}
}

func Attack(id, target string) Request {
	return Request{Type: TypeAttack, ConnectionID: id, Target: target}
}

func Equip(id, item string, dest Destination) Request {
	return Request{Type: TypeEquip, ConnectionID: id, ItemName: item, Destination: dest}
}

func UseItem(id string) Request { return Request{Type: TypeUseItem, ConnectionID: id} }

func OpenContainer(id string, pos bridge.Vec3) Request {
	return Request{Type: TypeOpenContainer, ConnectionID: id, Position: &pos}
}

func InteractEntity(id, target string) Request {
	return Request{Type: TypeInteractEntity, ConnectionID: id, Target: target}
}

func SendChat(id, msg string) Request {
	return Request{Type: TypeSendChat, ConnectionID: id, Message: msg}
}

// Validate checks that the fields required by a built-in r.Type are present
// and well formed.
func (r Request) Validate() error {
	if r.ConnectionID == "" {
		return fmt.Errorf("missing botId")
	}
	switch r.Type {
	case TypeJump, TypeUseItem:
	case TypeMoveTo, TypeLookAt, TypeDig, TypeOpenContainer:
		if r.Position == nil {
			return fmt.Errorf("%s requires position", r.Type)
		}
	case TypePlaceBlock:
		if r.Position == nil {
			return fmt.Errorf("%s requires position", r.Type)
		}
		if _, ok := r.Face.Vector(); !ok {
			return fmt.Errorf("invalid face %q", r.Face)
		}
	case TypeSprint, TypeSneak:
		if r.Enabled == nil {
			return fmt.Errorf("%s requires enabled", r.Type)
		}
	case TypeAttack, TypeInteractEntity:
		if r.Target == "" {
			return fmt.Errorf("%s requires target", r.Type)
		}
	case TypeEquip:
		if r.ItemName == "" {
			return fmt.Errorf("equip requires itemName")
		}
		if !r.Destination.Valid() {
			return fmt.Errorf("invalid destination %q", r.Destination)
		}
	case TypeSendChat:
		if n := len([]rune(r.Message)); n < 1 || n > MaxChatLength {
			return fmt.Errorf("message must be 1-%d characters", MaxChatLength)
		}
	}
	// Kinds registered beyond the built-in set check their own fields.
	return nil
}

// Parse decodes a request from its wire form. It rejects unknown types but
// leaves field validation to dispatch.
func Parse(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("bad action json: %w", err)
	}
	if r.Type == "" {
		return Request{}, fmt.Errorf("missing action type")
	}
	if !r.Type.Known() {
		return Request{}, fmt.Errorf("unknown action type %q", r.Type)
	}
	return r, nil
}

func formatPos(v bridge.Vec3) string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	return "(" + f(v.X) + ", " + f(v.Y) + ", " + f(v.Z) + ")"
}
