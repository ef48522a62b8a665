package voice

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordPlatform speaks through a Discord bot account.
type DiscordPlatform struct {
	token string
	log   *log.Logger

	mu      sync.Mutex
	session *discordgo.Session
	conns   map[string]*discordgo.VoiceConnection
	stops   map[string]chan struct{}
}

func NewDiscordPlatform(token string, logger *log.Logger) *DiscordPlatform {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &DiscordPlatform{
		token: token,
		log:   logger,
		conns: map[string]*discordgo.VoiceConnection{},
		stops: map[string]chan struct{}{},
	}
}

func (p *DiscordPlatform) ConnectGateway(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + p.token)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	ready := make(chan struct{}, 1)
	remove := dg.AddHandlerOnce(func(s *discordgo.Session, r *discordgo.Ready) {
		p.log.Printf("gateway ready as %s#%s", r.User.Username, r.User.Discriminator)
		ready <- struct{}{}
	})
	if err := dg.Open(); err != nil {
		remove()
		return fmt.Errorf("open gateway: %w", err)
	}
	select {
	case <-ready:
	case <-ctx.Done():
		_ = dg.Close()
		return ctx.Err()
	}

	p.mu.Lock()
	p.session = dg
	p.mu.Unlock()
	return nil
}

func (p *DiscordPlatform) Guilds() []string {
	p.mu.Lock()
	dg := p.session
	p.mu.Unlock()
	if dg == nil || dg.State == nil {
		return nil
	}
	dg.State.RLock()
	defer dg.State.RUnlock()
	out := make([]string, 0, len(dg.State.Guilds))
	for _, g := range dg.State.Guilds {
		out = append(out, g.ID)
	}
	sort.Strings(out)
	return out
}

func (p *DiscordPlatform) JoinVoice(ctx context.Context, guildID, channelID string) error {
	p.mu.Lock()
	dg := p.session
	p.mu.Unlock()
	if dg == nil {
		return fmt.Errorf("gateway not connected")
	}
	// Muted=false, deafened=true: the agent only talks.
	vc, err := dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if old, ok := p.conns[guildID]; ok && old != vc {
		_ = old.Disconnect()
	}
	p.conns[guildID] = vc
	p.mu.Unlock()
	return nil
}

func (p *DiscordPlatform) LeaveVoice(guildID string) bool {
	p.mu.Lock()
	vc, ok := p.conns[guildID]
	delete(p.conns, guildID)
	p.mu.Unlock()
	if !ok {
		return false
	}
	p.StopAudio(guildID)
	if err := vc.Disconnect(); err != nil {
		p.log.Printf("leave %s: %v", guildID, err)
	}
	return true
}

func (p *DiscordPlatform) PlayAudio(ctx context.Context, guildID string, frames [][]byte) (int64, error) {
	p.mu.Lock()
	vc, ok := p.conns[guildID]
	if !ok {
		p.mu.Unlock()
		return 0, fmt.Errorf("no voice connection for guild %s", guildID)
	}
	if prev, busy := p.stops[guildID]; busy {
		close(prev)
	}
	stop := make(chan struct{})
	p.stops[guildID] = stop
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.stops[guildID] == stop {
			delete(p.stops, guildID)
		}
		p.mu.Unlock()
	}()

	if err := vc.Speaking(true); err != nil {
		return 0, fmt.Errorf("speaking: %w", err)
	}
	defer func() { _ = vc.Speaking(false) }()

	start := time.Now()
	for _, f := range frames {
		select {
		case <-ctx.Done():
			return time.Since(start).Milliseconds(), ctx.Err()
		case <-stop:
			return time.Since(start).Milliseconds(), nil
		case vc.OpusSend <- f:
		}
	}
	return int64(len(frames) * FrameDurationMs), nil
}

func (p *DiscordPlatform) StopAudio(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	stop, ok := p.stops[guildID]
	if !ok {
		return false
	}
	close(stop)
	delete(p.stops, guildID)
	return true
}

func (p *DiscordPlatform) Close() error {
	p.mu.Lock()
	dg := p.session
	conns := p.conns
	p.session = nil
	p.conns = map[string]*discordgo.VoiceConnection{}
	for g, stop := range p.stops {
		close(stop)
		delete(p.stops, g)
	}
	p.mu.Unlock()

	for _, vc := range conns {
		_ = vc.Disconnect()
	}
	if dg == nil {
		return nil
	}
	return dg.Close()
}

var _ Platform = (*DiscordPlatform)(nil)
