package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"agentarena.ai/internal/behavior"
)

// ActionLogger persists behavior action events under <dataDir>/actions.
type ActionLogger struct {
	w   *JSONLZstdWriter
	log *stdlog.Logger
}

func NewActionLogger(dataDir string, logger *stdlog.Logger) *ActionLogger {
	if logger == nil {
		logger = stdlog.New(io.Discard, "", 0)
	}
	return &ActionLogger{
		w:   NewJSONLZstdWriter(filepath.Join(dataDir, "actions"), "actions"),
		log: logger,
	}
}

func (l *ActionLogger) WriteAction(ev behavior.ActionEvent) error { return l.w.Write(ev) }

// BehaviorEvent lets the logger sit in the agents' sink list. Write errors
// are logged, never returned to the behavior loop.
func (l *ActionLogger) BehaviorEvent(ev behavior.ActionEvent) {
	if err := l.w.Write(ev); err != nil {
		l.log.Printf("action log write %s: %v", ev.ActionID, err)
	}
}

func (l *ActionLogger) Close() error { return l.w.Close() }

// ReadActions decodes a closed action log file.
func ReadActions(path string) ([]behavior.ActionEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []behavior.ActionEvent
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		var ev behavior.ActionEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, len(out)+1, err)
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}
