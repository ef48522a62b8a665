// Package rpc exposes the inbound command surface as JSON-RPC 2.0 over HTTP.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/behavior"
	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/profiles"
	"agentarena.ai/internal/voice"
)

type Connections interface {
	Create(ctx context.Context, p bot.CreateParams) (bot.ConnectionState, error)
	Remove(id string) bool
	States() []bot.ConnectionState
	State(id string) (bot.ConnectionState, bool)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req actions.Request) actions.Outcome
}

type Agents interface {
	Spawn(ctx context.Context, name, profile string) (behavior.Record, error)
	Pause(agentID string) (behavior.Record, error)
	Resume(agentID string) (behavior.Record, error)
	Terminate(agentID string) (behavior.Record, error)
	TerminateAll() int
	List() []behavior.Record
	ActionLog(agentID string, limit int) ([]behavior.ActionEvent, error)
	Health(agentID string) (behavior.Health, error)
	Summary() map[behavior.Status]int
}

type Profiles interface {
	All() []profiles.Profile
}

type Voice interface {
	Status() voice.Status
	JoinVoice(ctx context.Context, guildID, channelID string) (voice.VoiceConnection, error)
	LeaveVoice(guildID string) error
	Speak(ctx context.Context, guildID, text, voiceID string) (voice.SpeechResult, error)
	StopSpeaking(guildID string) bool
	Reply(ctx context.Context, guildID string, p profiles.Profile, text string) (bool, error)
}

type Config struct {
	Connections Connections
	Dispatcher  Dispatcher
	Agents      Agents
	Profiles    Profiles
	// Voice is nil when no voice platform is configured.
	Voice Voice

	HMACSecret string
	Logger     *log.Logger
}

type Server struct {
	conns    Connections
	disp     Dispatcher
	agents   Agents
	profiles Profiles
	voice    Voice

	hmacSecret []byte
	replay     *replayGuard
	log        *log.Logger
	now        func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Connections == nil {
		return nil, fmt.Errorf("nil connections")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("nil dispatcher")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		conns:    cfg.Connections,
		disp:     cfg.Dispatcher,
		agents:   cfg.Agents,
		profiles: cfg.Profiles,
		voice:    cfg.Voice,
		log:      logger,
		now:      time.Now,
	}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.hmacSecret = []byte(cfg.HMACSecret)
		s.replay = newReplayGuard(2 * authWindow)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/rpc", s.HandleRPC)
	return mux
}

func (s *Server) HandleRPC(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte("bad body"))
		return
	}
	_ = r.Body.Close()

	// Optional HMAC auth.
	caller := strings.TrimSpace(r.Header.Get(headerAgentID))
	if len(s.hmacSecret) > 0 {
		vr := verifyHMAC(r, body, s.hmacSecret, s.now())
		if vr.HTTPStatus != 0 {
			rw.WriteHeader(vr.HTTPStatus)
			_, _ = rw.Write([]byte(vr.Message))
			return
		}
		if !s.replay.allow(vr.Caller, vr.Nonce, s.now()) {
			rw.WriteHeader(http.StatusUnauthorized)
			_, _ = rw.Write([]byte("replayed request"))
			return
		}
		caller = vr.Caller
	}
	if caller == "" {
		caller = "anonymous"
	}

	var resp Response
	req, err := parseRequest(body)
	if !json.Valid(body) {
		resp = rpcErr(nil, codeParseError, "parse error", nil)
	} else if err != nil {
		resp = rpcErr(nil, codeInvalidRequest, "bad jsonrpc request", err.Error())
	} else {
		resp = s.dispatch(r.Context(), caller, req)
	}
	rw.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, caller string, req Request) Response {
	m, ok := methods[req.Method]
	if !ok {
		return rpcErr(req.ID, codeMethodNotFound, "method not found", map[string]any{"method": req.Method})
	}
	out, err := m(s, ctx, req.Params)
	if err != nil {
		if e, ok := err.(*Error); ok {
			return Response{JSONRPC: "2.0", ID: req.ID, Error: e}
		}
		s.log.Printf("%s %s: %v", caller, req.Method, err)
		return rpcErr(req.ID, codeInternal, err.Error(), nil)
	}
	return rpcOK(req.ID, out)
}
