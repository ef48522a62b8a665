package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeBase(t *testing.T) {
	b, err := DecodeBase([]byte(`{"type":"OBS","protocol_version":"1.0","tick":3}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if b.Type != TypeObs || b.ProtocolVersion != "1.0" {
		t.Fatalf("unexpected base: %+v", b)
	}
	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("expected error for truncated json")
	}
}

func TestIsSupportedVersion(t *testing.T) {
	for _, v := range []string{"", "1.0", "1.3", " 1.0 ", "1"} {
		if !IsSupportedVersion(v) {
			t.Fatalf("expected supported: %q", v)
		}
	}
	for _, v := range []string{"0.9", "2.0"} {
		if IsSupportedVersion(v) {
			t.Fatalf("expected unsupported: %q", v)
		}
	}
}

func TestActMsg_OmitsUnsetFields(t *testing.T) {
	on := true
	b, _ := json.Marshal(ActMsg{
		Type:            TypeAct,
		ProtocolVersion: Version,
		ID:              "A1",
		Action:          ActControl,
		Flag:            "sprint",
		Enabled:         &on,
	})
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"target", "block", "face", "text", "item"} {
		if _, ok := m[k]; ok {
			t.Fatalf("unexpected field %q in %s", k, b)
		}
	}
	if m["enabled"] != true || m["flag"] != "sprint" {
		t.Fatalf("control fields missing: %s", b)
	}
}
