package protocol

import (
	"encoding/json"
	"strings"
)

const Version = "1.0"

// Message types.
const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeSpawn     = "SPAWN"
	TypeObs       = "OBS"
	TypeEvent     = "EVENT"
	TypeAct       = "ACT"
	TypeActResult = "ACT_RESULT"
	TypeError     = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// IsSupportedVersion accepts any version sharing our major number. An empty
// version is treated as current so that minimal gateways can omit it.
func IsSupportedVersion(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	return major(v) == major(Version)
}

func major(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}
