package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSynthesizer posts text to a TTS endpoint that answers with a stream of
// opus frames, each prefixed by its little-endian uint16 length.
type HTTPSynthesizer struct {
	URL          string
	APIKey       string
	DefaultVoice string
	Client       *http.Client

	Attempts int
	Backoff  time.Duration
}

func NewHTTPSynthesizer(url, apiKey, defaultVoice string) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		URL:          url,
		APIKey:       apiKey,
		DefaultVoice: defaultVoice,
		Client:       &http.Client{Timeout: 60 * time.Second},
		Attempts:     3,
		Backoff:      2 * time.Second,
	}
}

type synthRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
	Format  string `json:"format"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([][]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text")
	}
	if voiceID == "" {
		voiceID = s.DefaultVoice
	}
	payload, err := json.Marshal(synthRequest{Text: text, VoiceID: voiceID, Format: "opus_frames"})
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	status, body, err := doWithRetry(ctx, s.Attempts, s.Backoff, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if s.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.APIKey)
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		return resp.StatusCode, b, err
	})
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("tts status %d: %s", status, truncate(string(body), 200))
	}
	return decodeFrames(body)
}

func decodeFrames(b []byte) ([][]byte, error) {
	var frames [][]byte
	for len(b) > 0 {
		if len(b) < 2 {
			return nil, fmt.Errorf("truncated frame header")
		}
		n := int(binary.LittleEndian.Uint16(b))
		b = b[2:]
		if n > len(b) {
			return nil, fmt.Errorf("truncated frame: want %d bytes, have %d", n, len(b))
		}
		frames = append(frames, b[:n:n])
		b = b[n:]
	}
	return frames, nil
}

func encodeFrames(frames [][]byte) []byte {
	var buf bytes.Buffer
	var hdr [2]byte
	for _, f := range frames {
		binary.LittleEndian.PutUint16(hdr[:], uint16(len(f)))
		buf.Write(hdr[:])
		buf.Write(f)
	}
	return buf.Bytes()
}

// doWithRetry retries fn on transport errors, 429 and 5xx, doubling the
// delay between attempts up to 30s.
func doWithRetry(ctx context.Context, attempts int, initialDelay time.Duration, fn func() (int, []byte, error)) (int, []byte, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if initialDelay <= 0 {
		initialDelay = 2 * time.Second
	}
	delay := initialDelay
	for i := 0; i < attempts; i++ {
		status, body, err := fn()
		if err == nil && status != http.StatusTooManyRequests && status < 500 {
			return status, body, nil
		}
		if i == attempts-1 {
			return status, body, err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return status, body, ctx.Err()
		case <-t.C:
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	return 0, nil, context.DeadlineExceeded
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
