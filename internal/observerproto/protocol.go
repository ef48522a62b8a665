// Package observerproto is the wire format between the server and real-time
// listeners (dashboards, test harnesses) on /v1/ws.
package observerproto

import (
	"encoding/json"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/bot"
)

// Client -> server.
const (
	TypeSubscribe     = "subscribe"
	TypeUnsubscribe   = "unsubscribe"
	TypeExecuteAction = "execute-action"
	TypePing          = "ping"
)

// Server -> client.
const (
	TypeStateUpdate  = "bot-state-update"
	TypeActionResult = "action-result"
	TypeBotEvent     = "bot-event"
	TypeError        = "error"
	TypePong         = "pong"
	TypeSystem       = "system"
)

type Envelope struct {
	Type string `json:"type"`
}

type SubscribeMsg struct {
	Type   string   `json:"type"`
	BotIDs []string `json:"botIds"`
}

type ExecuteActionMsg struct {
	Type   string          `json:"type"`
	Action json.RawMessage `json:"action"`
}

type StateUpdateMsg struct {
	Type  string              `json:"type"`
	State bot.ConnectionState `json:"state"`
}

type ActionResultMsg struct {
	Type   string          `json:"type"`
	Result actions.Outcome `json:"result"`
}

type BotEventMsg struct {
	Type  string         `json:"type"`
	BotID string         `json:"botId"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
	At    string         `json:"at"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type PongMsg struct {
	Type string `json:"type"`
	At   string `json:"at"`
}

type SystemMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func StateUpdate(st bot.ConnectionState) StateUpdateMsg {
	return StateUpdateMsg{Type: TypeStateUpdate, State: st}
}

func ActionResult(o actions.Outcome) ActionResultMsg {
	return ActionResultMsg{Type: TypeActionResult, Result: o}
}

func Error(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Code: code, Message: message}
}
