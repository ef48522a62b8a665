package voice

import (
	"context"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"agentarena.ai/internal/profiles"
)

type VoiceConnection struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	Speaking  bool   `json:"speaking"`
}

type Status struct {
	Running          bool              `json:"running"`
	Status           string            `json:"status"`
	Guilds           []string          `json:"guilds"`
	VoiceConnections []VoiceConnection `json:"voiceConnections"`
}

type SpeechResult struct {
	Success    bool  `json:"success"`
	DurationMs int64 `json:"durationMs"`
}

// Service owns the platform session and tracks joined channels and active
// playback per guild.
type Service struct {
	platform Platform
	synth    Synthesizer
	log      *log.Logger

	mu       sync.Mutex
	running  bool
	joined   map[string]string
	speaking map[string]int
	rng      *rand.Rand
}

// NewService wires a platform with an optional synthesizer. Without a
// synthesizer Speak fails with TTS_NOT_CONFIGURED.
func NewService(platform Platform, synth Synthesizer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		platform: platform,
		synth:    synth,
		log:      logger,
		joined:   map[string]string{},
		speaking: map[string]int{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return &Error{Code: ErrAlreadyRunning, Message: "voice bot is already running"}
	}
	s.mu.Unlock()

	if err := s.platform.ConnectGateway(ctx); err != nil {
		return &Error{Code: ErrStartFailed, Message: "failed to start voice bot", Err: err}
	}
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.log.Printf("voice bot online")
	return nil
}

func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.joined = map[string]string{}
	s.mu.Unlock()
	s.log.Printf("voice bot offline")
	return s.platform.Close()
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) Status() Status {
	s.mu.Lock()
	running := s.running
	conns := make([]VoiceConnection, 0, len(s.joined))
	for g, ch := range s.joined {
		conns = append(conns, VoiceConnection{GuildID: g, ChannelID: ch, Speaking: s.speaking[g] > 0})
	}
	s.mu.Unlock()
	sort.Slice(conns, func(i, j int) bool { return conns[i].GuildID < conns[j].GuildID })

	st := Status{Running: running, Status: "offline", Guilds: []string{}, VoiceConnections: conns}
	if running {
		st.Status = "online"
		if g := s.platform.Guilds(); g != nil {
			st.Guilds = g
		}
	}
	return st
}

func (s *Service) JoinVoice(ctx context.Context, guildID, channelID string) (VoiceConnection, error) {
	if !s.Running() {
		return VoiceConnection{}, notReady()
	}
	if err := s.platform.JoinVoice(ctx, guildID, channelID); err != nil {
		return VoiceConnection{}, &Error{Code: ErrJoinFailed, Message: "failed to join voice channel", Err: err}
	}
	s.mu.Lock()
	s.joined[guildID] = channelID
	s.mu.Unlock()
	s.log.Printf("joined voice %s/%s", guildID, channelID)
	return VoiceConnection{GuildID: guildID, ChannelID: channelID}, nil
}

func (s *Service) LeaveVoice(guildID string) error {
	s.mu.Lock()
	_, ok := s.joined[guildID]
	delete(s.joined, guildID)
	s.mu.Unlock()
	if !ok {
		return &Error{Code: ErrNoVoiceConnection, Message: `No voice connection found for guild "` + guildID + `".`}
	}
	s.platform.LeaveVoice(guildID)
	s.log.Printf("left voice %s", guildID)
	return nil
}

// Speak synthesizes text and plays it in the guild's voice channel.
func (s *Service) Speak(ctx context.Context, guildID, text, voiceID string) (SpeechResult, error) {
	s.mu.Lock()
	running := s.running
	_, joined := s.joined[guildID]
	s.mu.Unlock()
	if !running {
		return SpeechResult{}, notReady()
	}
	if !joined {
		return SpeechResult{}, &Error{Code: ErrNoVoiceConnection, Message: `No voice connection for guild "` + guildID + `". Join a voice channel first.`}
	}
	if s.synth == nil {
		return SpeechResult{}, &Error{Code: ErrTTSNotConfigured, Message: "TTS is not configured."}
	}

	frames, err := s.synth.Synthesize(ctx, text, voiceID)
	if err != nil {
		return SpeechResult{}, &Error{Code: ErrSpeechFailed, Message: "speech generation failed", Err: err}
	}

	s.mu.Lock()
	s.speaking[guildID]++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.speaking[guildID]--; s.speaking[guildID] <= 0 {
			delete(s.speaking, guildID)
		}
		s.mu.Unlock()
	}()

	ms, err := s.platform.PlayAudio(ctx, guildID, frames)
	if err != nil {
		return SpeechResult{}, &Error{Code: ErrSpeechFailed, Message: "playback failed", Err: err}
	}
	return SpeechResult{Success: true, DurationMs: ms}, nil
}

// StopSpeaking interrupts playback. It reports whether anything was playing.
func (s *Service) StopSpeaking(guildID string) bool {
	return s.platform.StopAudio(guildID)
}

func (s *Service) IsSpeaking(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking[guildID] > 0
}

// Reply answers an incoming message the way profile p would: it may ignore
// it, and otherwise waits the profile's response delay before speaking.
func (s *Service) Reply(ctx context.Context, guildID string, p profiles.Profile, text string) (bool, error) {
	s.mu.Lock()
	respond := p.ShouldRespond(s.rng)
	delay := p.ResponseDelay(s.rng)
	s.mu.Unlock()
	if !respond {
		return false, nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-t.C:
	}
	if _, err := s.Speak(ctx, guildID, text, ""); err != nil {
		return false, err
	}
	return true, nil
}

func notReady() error {
	return &Error{Code: ErrBotNotReady, Message: "Voice bot is not connected. Start the bot first."}
}
