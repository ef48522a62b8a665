package bot

import (
	"time"

	"agentarena.ai/internal/bridge"
)

// Status is a connection's lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusSpawned      Status = "spawned"
	StatusError        Status = "error"
)

// Live reports whether a connection in this status still holds its display
// name.
func (s Status) Live() bool {
	return s == StatusConnecting || s == StatusConnected || s == StatusSpawned
}

// ConnectionState is a read-only snapshot of one connection. Position,
// orientation and vitality are only set while the connection is spawned.
type ConnectionState struct {
	ConnectionID  string              `json:"botId"`
	DisplayName   string              `json:"username"`
	Status        Status              `json:"status"`
	Position      *bridge.Vec3        `json:"position"`
	Orientation   *bridge.Orientation `json:"orientation"`
	Health        *float64            `json:"health"`
	Food          *float64            `json:"food"`
	GameMode      *string             `json:"gameMode"`
	Inventory     []bridge.Item       `json:"inventory"`
	LastUpdatedAt time.Time           `json:"lastUpdatedAt"`
}
