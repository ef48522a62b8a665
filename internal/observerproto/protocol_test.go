package observerproto

import (
	"encoding/json"
	"testing"

	"agentarena.ai/internal/actions"
)

func TestValidateClient(t *testing.T) {
	good := []string{
		`{"type":"subscribe","botIds":["a","b"]}`,
		`{"type":"unsubscribe","botIds":[]}`,
		`{"type":"ping"}`,
		`{"type":"execute-action","action":{"type":"jump","botId":"a"}}`,
		`{"type":"execute-action","action":{"type":"place-block","botId":"a","position":{"x":1,"y":2,"z":3},"face":"top"}}`,
	}
	for _, in := range good {
		if err := ValidateClient([]byte(in)); err != nil {
			t.Fatalf("ValidateClient(%s): %v", in, err)
		}
	}
	bad := []string{
		`{"type":"subscribe"}`,
		`{"type":"subscribe","botIds":"a"}`,
		`{"type":"dance"}`,
		`{"botIds":[]}`,
		`{"type":"execute-action"}`,
		`{"type":"execute-action","action":{"type":"fly","botId":"a"}}`,
		`{"type":"execute-action","action":{"type":"dig","botId":"a"}}`,
		`{"type":"execute-action","action":{"type":"place-block","botId":"a","position":{"x":1,"y":2,"z":3},"face":"up"}}`,
		`{"type":"execute-action","action":{"type":"send-chat","botId":"a","message":""}}`,
	}
	for _, in := range bad {
		if err := ValidateClient([]byte(in)); err == nil {
			t.Fatalf("ValidateClient(%s) accepted", in)
		}
	}
	if err := ValidateClient([]byte(`{`)); err == nil {
		t.Fatalf("malformed json accepted")
	}
}

// Requests built by the actions package must satisfy the published schema.
func TestValidateAction_BuiltRequests(t *testing.T) {
	on := true
	reqs := []actions.Request{
		actions.Jump("a"),
		actions.Sprint("a", on),
		actions.Equip("a", "stick", actions.DestOffHand),
		actions.SendChat("a", "hello"),
		actions.Attack("a", "Steve"),
	}
	for _, r := range reqs {
		b, _ := json.Marshal(r)
		if err := ValidateAction(b); err != nil {
			t.Fatalf("%s: %v", b, err)
		}
	}
}

func TestServerMessagesShape(t *testing.T) {
	b, _ := json.Marshal(Error("E_BAD_REQUEST", "bad json"))
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if m["type"] != "error" || m["code"] != "E_BAD_REQUEST" || m["message"] != "bad json" {
		t.Fatalf("error msg = %s", b)
	}
	b, _ = json.Marshal(ActionResult(actions.Outcome{ConnectionID: "a", ActionType: actions.TypeJump, Status: actions.StatusSuccess}))
	_ = json.Unmarshal(b, &m)
	res := m["result"].(map[string]any)
	if m["type"] != "action-result" || res["botId"] != "a" || res["actionType"] != "jump" {
		t.Fatalf("action-result msg = %s", b)
	}
}
