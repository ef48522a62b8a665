// Package voice drives an agent's presence on a voice chat platform: joining
// channels and speaking synthesized text.
package voice

import "context"

// FrameDurationMs is the playback length of one opus frame.
const FrameDurationMs = 20

// Platform is the voice/chat platform boundary. Audio frames are opaque
// opus packets.
type Platform interface {
	ConnectGateway(ctx context.Context) error
	Guilds() []string
	JoinVoice(ctx context.Context, guildID, channelID string) error
	LeaveVoice(guildID string) bool
	// PlayAudio blocks until the frames were sent, StopAudio was called, or
	// ctx ended, and returns the played duration.
	PlayAudio(ctx context.Context, guildID string, frames [][]byte) (int64, error)
	StopAudio(guildID string) bool
	Close() error
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([][]byte, error)
}
