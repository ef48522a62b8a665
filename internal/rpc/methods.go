package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/behavior"
	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/observerproto"
	"agentarena.ai/internal/profiles"
	"agentarena.ai/internal/voice"
)

type method func(s *Server, ctx context.Context, params json.RawMessage) (any, error)

var methods = map[string]method{
	"ping":               (*Server).ping,
	"createConnection":   (*Server).createConnection,
	"removeConnection":   (*Server).removeConnection,
	"listConnections":    (*Server).listConnections,
	"getConnectionState": (*Server).getConnectionState,
	"dispatchAction":     (*Server).dispatchAction,

	"spawnAgent":     (*Server).spawnAgent,
	"pauseAgent":     (*Server).pauseAgent,
	"resumeAgent":    (*Server).resumeAgent,
	"terminateAgent": (*Server).terminateAgent,
	"terminateAll":   (*Server).terminateAll,
	"listAgents":     (*Server).listAgents,
	"agentActions":   (*Server).agentActions,
	"agentHealth":    (*Server).agentHealth,
	"listProfiles":   (*Server).listProfiles,

	"voiceStatus": (*Server).voiceStatus,
	"voiceJoin":   (*Server).voiceJoin,
	"voiceLeave":  (*Server).voiceLeave,
	"voiceSpeak":  (*Server).voiceSpeak,
	"voiceStop":   (*Server).voiceStop,
	"voiceReply":  (*Server).voiceReply,
}

// Methods lists the registered method names.
func Methods() []string {
	out := make([]string, 0, len(methods))
	for name := range methods {
		out = append(out, name)
	}
	return out
}

func badParams(msg string, data any) *Error {
	return &Error{Code: codeInvalidParams, Message: msg, Data: data}
}

// decode unmarshals params into v and checks that every named field is a
// non-empty string.
func decode(params json.RawMessage, v any, required ...string) error {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return badParams("bad params", err.Error())
	}
	if len(required) == 0 {
		return nil
	}
	var raw map[string]any
	_ = json.Unmarshal(params, &raw)
	for _, f := range required {
		if s, ok := raw[f].(string); !ok || strings.TrimSpace(s) == "" {
			return badParams("missing "+f, map[string]any{"field": f})
		}
	}
	return nil
}

// domainErr maps a service error onto a -32000 response carrying the
// service's own code.
func domainErr(err error) *Error {
	code := "INTERNAL"
	switch {
	case bot.CodeOf(err) != "":
		code = string(bot.CodeOf(err))
	case voice.CodeOf(err) != "":
		code = voice.CodeOf(err)
	case errors.Is(err, behavior.ErrUnknownAgent):
		code = "UNKNOWN_AGENT"
	case errors.Is(err, behavior.ErrUnknownProfile):
		code = "UNKNOWN_PROFILE"
	case errors.Is(err, behavior.ErrInvalidTransition):
		code = "INVALID_TRANSITION"
	}
	return &Error{Code: codeDomain, Message: err.Error(), Data: map[string]any{"code": code}}
}

func notFound(msg string) *Error {
	return &Error{Code: codeDomain, Message: msg, Data: map[string]any{"code": string(bot.ErrNotFound)}}
}

func (s *Server) ping(ctx context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{"type": "pong", "at": actions.FormatTimestamp(s.now())}, nil
}

type botIDParams struct {
	BotID string `json:"botId"`
}

func (s *Server) createConnection(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Username string `json:"username"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Version  string `json:"version"`
		Auth     string `json:"auth"`
	}
	if err := decode(params, &p, "username"); err != nil {
		return nil, err
	}
	st, err := s.conns.Create(ctx, bot.CreateParams{
		DisplayName: p.Username,
		Host:        p.Host,
		Port:        p.Port,
		Version:     p.Version,
		Auth:        p.Auth,
	})
	if err != nil {
		return nil, domainErr(err)
	}
	return st, nil
}

func (s *Server) removeConnection(ctx context.Context, params json.RawMessage) (any, error) {
	var p botIDParams
	if err := decode(params, &p, "botId"); err != nil {
		return nil, err
	}
	if !s.conns.Remove(p.BotID) {
		return nil, notFound("Bot " + p.BotID + " not found")
	}
	return map[string]any{"removed": true, "botId": p.BotID}, nil
}

func (s *Server) listConnections(ctx context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{"bots": s.conns.States()}, nil
}

func (s *Server) getConnectionState(ctx context.Context, params json.RawMessage) (any, error) {
	var p botIDParams
	if err := decode(params, &p, "botId"); err != nil {
		return nil, err
	}
	st, ok := s.conns.State(p.BotID)
	if !ok {
		return nil, notFound("Bot " + p.BotID + " not found")
	}
	return st, nil
}

// dispatchAction always answers with an outcome once the action passes
// schema validation; dispatch failures are outcomes, not errors.
func (s *Server) dispatchAction(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Action json.RawMessage `json:"action"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if len(p.Action) == 0 {
		return nil, badParams("missing action", nil)
	}
	if err := observerproto.ValidateAction(p.Action); err != nil {
		return nil, badParams("invalid action", err.Error())
	}
	req, err := actions.Parse(p.Action)
	if err != nil {
		return nil, badParams("invalid action", err.Error())
	}
	return s.disp.Dispatch(ctx, req), nil
}

type agentIDParams struct {
	AgentID string `json:"agentId"`
}

func (s *Server) requireAgents() error {
	if s.agents == nil {
		return &Error{Code: codeDomain, Message: "agents are not enabled", Data: map[string]any{"code": "UNAVAILABLE"}}
	}
	return nil
}

func (s *Server) spawnAgent(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireAgents(); err != nil {
		return nil, err
	}
	var p struct {
		Name    string `json:"name"`
		Profile string `json:"profile"`
	}
	if err := decode(params, &p, "name", "profile"); err != nil {
		return nil, err
	}
	rec, err := s.agents.Spawn(ctx, p.Name, p.Profile)
	if err != nil {
		return nil, domainErr(err)
	}
	return rec, nil
}

func (s *Server) agentOp(params json.RawMessage, op func(string) (behavior.Record, error)) (any, error) {
	if err := s.requireAgents(); err != nil {
		return nil, err
	}
	var p agentIDParams
	if err := decode(params, &p, "agentId"); err != nil {
		return nil, err
	}
	rec, err := op(p.AgentID)
	if err != nil {
		return nil, domainErr(err)
	}
	return rec, nil
}

func (s *Server) pauseAgent(ctx context.Context, params json.RawMessage) (any, error) {
	if s.agents == nil {
		return nil, s.requireAgents()
	}
	return s.agentOp(params, s.agents.Pause)
}

func (s *Server) resumeAgent(ctx context.Context, params json.RawMessage) (any, error) {
	if s.agents == nil {
		return nil, s.requireAgents()
	}
	return s.agentOp(params, s.agents.Resume)
}

func (s *Server) terminateAgent(ctx context.Context, params json.RawMessage) (any, error) {
	if s.agents == nil {
		return nil, s.requireAgents()
	}
	return s.agentOp(params, s.agents.Terminate)
}

func (s *Server) terminateAll(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := s.requireAgents(); err != nil {
		return nil, err
	}
	return map[string]any{"terminated": s.agents.TerminateAll()}, nil
}

func (s *Server) listAgents(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := s.requireAgents(); err != nil {
		return nil, err
	}
	return map[string]any{"agents": s.agents.List()}, nil
}

func (s *Server) agentActions(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireAgents(); err != nil {
		return nil, err
	}
	var p struct {
		AgentID string `json:"agentId"`
		Limit   int    `json:"limit"`
	}
	if err := decode(params, &p, "agentId"); err != nil {
		return nil, err
	}
	evs, err := s.agents.ActionLog(p.AgentID, p.Limit)
	if err != nil {
		return nil, domainErr(err)
	}
	return map[string]any{"actions": evs}, nil
}

// agentHealth reports one agent when agentId is given, otherwise counts by
// status.
func (s *Server) agentHealth(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireAgents(); err != nil {
		return nil, err
	}
	var p agentIDParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.AgentID == "" {
		return map[string]any{"statuses": s.agents.Summary()}, nil
	}
	h, err := s.agents.Health(p.AgentID)
	if err != nil {
		return nil, domainErr(err)
	}
	return h, nil
}

func (s *Server) listProfiles(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.profiles == nil {
		return map[string]any{"profiles": []any{}}, nil
	}
	return map[string]any{"profiles": s.profiles.All()}, nil
}

func (s *Server) requireVoice() error {
	if s.voice == nil {
		return &Error{Code: codeDomain, Message: "voice is not configured", Data: map[string]any{"code": voice.ErrBotNotReady}}
	}
	return nil
}

func (s *Server) voiceStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.voice == nil {
		return voice.Status{Status: "offline", Guilds: []string{}, VoiceConnections: []voice.VoiceConnection{}}, nil
	}
	return s.voice.Status(), nil
}

func (s *Server) voiceJoin(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireVoice(); err != nil {
		return nil, err
	}
	var p struct {
		GuildID   string `json:"guildId"`
		ChannelID string `json:"channelId"`
	}
	if err := decode(params, &p, "guildId", "channelId"); err != nil {
		return nil, err
	}
	vc, err := s.voice.JoinVoice(ctx, p.GuildID, p.ChannelID)
	if err != nil {
		return nil, domainErr(err)
	}
	return vc, nil
}

type guildParams struct {
	GuildID string `json:"guildId"`
}

func (s *Server) voiceLeave(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireVoice(); err != nil {
		return nil, err
	}
	var p guildParams
	if err := decode(params, &p, "guildId"); err != nil {
		return nil, err
	}
	if err := s.voice.LeaveVoice(p.GuildID); err != nil {
		return nil, domainErr(err)
	}
	return map[string]any{"success": true, "message": `Left voice channel in guild "` + p.GuildID + `".`}, nil
}

func (s *Server) voiceSpeak(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireVoice(); err != nil {
		return nil, err
	}
	var p struct {
		GuildID string `json:"guildId"`
		Text    string `json:"text"`
		VoiceID string `json:"voiceId"`
	}
	if err := decode(params, &p, "guildId", "text"); err != nil {
		return nil, err
	}
	res, err := s.voice.Speak(ctx, p.GuildID, p.Text, p.VoiceID)
	if err != nil {
		return nil, domainErr(err)
	}
	return res, nil
}

func (s *Server) voiceStop(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireVoice(); err != nil {
		return nil, err
	}
	var p guildParams
	if err := decode(params, &p, "guildId"); err != nil {
		return nil, err
	}
	stopped := s.voice.StopSpeaking(p.GuildID)
	msg := "Nothing was playing."
	if stopped {
		msg = "Playback stopped."
	}
	return map[string]any{"success": stopped, "message": msg}, nil
}

// voiceReply speaks text the way a profile answers a message: it may be
// ignored, and otherwise comes after the profile's response delay.
func (s *Server) voiceReply(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireVoice(); err != nil {
		return nil, err
	}
	var p struct {
		GuildID string `json:"guildId"`
		Profile string `json:"profile"`
		Text    string `json:"text"`
	}
	if err := decode(params, &p, "guildId", "profile", "text"); err != nil {
		return nil, err
	}
	prof, ok := s.findProfile(p.Profile)
	if !ok {
		return nil, domainErr(fmt.Errorf("%w: %q", behavior.ErrUnknownProfile, p.Profile))
	}
	spoke, err := s.voice.Reply(ctx, p.GuildID, prof, p.Text)
	if err != nil {
		return nil, domainErr(err)
	}
	return map[string]any{"responded": spoke}, nil
}

func (s *Server) findProfile(name string) (profiles.Profile, bool) {
	if s.profiles == nil {
		return profiles.Profile{}, false
	}
	for _, p := range s.profiles.All() {
		if p.Name == name {
			return p, true
		}
	}
	return profiles.Profile{}, false
}
