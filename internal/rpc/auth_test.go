package rpc

import (
	"bytes"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func signedRequest(t *testing.T, secret []byte, ts string, body []byte) *http.Request {
	t.Helper()
	req, _ := http.NewRequest("POST", "http://example.invalid/rpc", bytes.NewReader(body))
	req.Header.Set(headerAgentID, "agent_1")
	req.Header.Set(headerTS, ts)
	req.Header.Set(headerNonce, "abc")
	req.Header.Set(headerSignature, signHMAC(secret, canonicalString(ts, "POST", "/rpc", "agent_1", "abc", body)))
	return req
}

func TestHMAC_Verify(t *testing.T) {
	secret := []byte("topsecret")
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req := signedRequest(t, secret, "1700000000000", body)

	vr := verifyHMAC(req, body, secret, time.UnixMilli(1700000000000))
	if vr.HTTPStatus != 0 || vr.Caller != "agent_1" {
		t.Fatalf("verify = %+v", vr)
	}
	// Body tampering.
	if vr := verifyHMAC(req, []byte(`{}`), secret, time.UnixMilli(1700000000000)); vr.Message != "bad signature" {
		t.Fatalf("tampered = %+v", vr)
	}
	req.Header.Del(headerNonce)
	if vr := verifyHMAC(req, body, secret, time.UnixMilli(1700000000000)); vr.Message != "missing x-nonce" {
		t.Fatalf("no nonce = %+v", vr)
	}
}

func TestHMAC_Verify_Expired(t *testing.T) {
	secret := []byte("topsecret")
	body := []byte(`{"jsonrpc":"2.0"}`)
	req := signedRequest(t, secret, "1700000000000", body)
	vr := verifyHMAC(req, body, secret, time.UnixMilli(1700000000000+301_000))
	if vr.HTTPStatus != http.StatusUnauthorized || vr.Message != "x-ts outside window" {
		t.Fatalf("expected window rejection, got %+v", vr)
	}
}

func TestReplayGuard(t *testing.T) {
	g := newReplayGuard(2 * time.Second)
	now := time.Unix(1700000000, 0)
	if !g.allow("agent_1", "nonce_1", now) {
		t.Fatalf("first request rejected")
	}
	if g.allow("agent_1", "nonce_1", now.Add(time.Second)) {
		t.Fatalf("duplicate inside ttl accepted")
	}
	if !g.allow("agent_2", "nonce_1", now.Add(time.Second)) {
		t.Fatalf("same nonce from another caller rejected")
	}
	if !g.allow("agent_1", "nonce_1", now.Add(3*time.Second)) {
		t.Fatalf("request after ttl rejected")
	}
	// agent_2's entry expired; only the renewed agent_1 entry remains.
	if n := g.size(); n != 1 {
		t.Fatalf("size = %d, want 1", n)
	}
}

func TestReplayGuard_Cap(t *testing.T) {
	g := newReplayGuard(time.Hour)
	now := time.Unix(1700000000, 0)
	for i := 0; i < maxRememberedNonces+10; i++ {
		g.allow("agent_1", strconv.Itoa(i), now)
	}
	if n := g.size(); n != maxRememberedNonces {
		t.Fatalf("size = %d", n)
	}
	// The oldest nonces were evicted first.
	if !g.allow("agent_1", "0", now) {
		t.Fatalf("evicted nonce still rejected")
	}
	if g.allow("agent_1", strconv.Itoa(maxRememberedNonces+9), now) {
		t.Fatalf("recent nonce accepted twice")
	}
}
