package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"agentarena.ai/internal/behavior"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable secondary index of action events and agent
// records. Writes are queued and applied in batches by a single goroutine;
// reads go straight to the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropActions atomic.Uint64
	dropAgents  atomic.Uint64
	written     atomic.Uint64
}

type reqKind int

const (
	reqAction reqKind = iota + 1
	reqAgent
	reqFlush
)

type req struct {
	kind reqKind

	action behavior.ActionEvent
	agent  behavior.Record
	done   chan struct{}
}

// Stats describes the writer queue.
type Stats struct {
	QueueDepth      int    `json:"queueDepth"`
	QueueCapacity   int    `json:"queueCapacity"`
	DropActionTotal uint64 `json:"dropActionTotal"`
	DropAgentTotal  uint64 `json:"dropAgentTotal"`
	WrittenTotal    uint64 `json:"writtenTotal"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS action_events (
			action_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			bot_id TEXT NOT NULL,
			behavior TEXT NOT NULL,
			action_type TEXT NOT NULL,
			success INTEGER NOT NULL,
			message TEXT NOT NULL,
			ts INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_action_events_agent_ts ON action_events(agent_id, ts);`,
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			bot_id TEXT NOT NULL,
			profile TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_action_at INTEGER,
			action_count INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// BehaviorEvent implements behavior.EventSink. It never blocks; when the
// writer falls behind the event is dropped and counted.
func (s *SQLiteIndex) BehaviorEvent(ev behavior.ActionEvent) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqAction, action: ev}:
	default:
		// The JSONL action log remains the source of truth.
		s.dropActions.Add(1)
	}
}

// RecordAgent implements behavior.RecordSink.
func (s *SQLiteIndex) RecordAgent(rec behavior.Record) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqAgent, agent: rec}:
	default:
		s.dropAgents.Add(1)
	}
}

// Flush blocks until everything queued before it has been committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropActionTotal: s.dropActions.Load(),
		DropAgentTotal:  s.dropAgents.Load(),
		WrittenTotal:    s.written.Load(),
	}
}

// RecentActions implements behavior.History: up to limit events for agentID,
// newest first.
func (s *SQLiteIndex) RecentActions(agentID string, limit int) ([]behavior.ActionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT action_id,agent_id,bot_id,behavior,action_type,success,message,ts,duration_ms
		FROM action_events WHERE agent_id=? ORDER BY ts DESC, rowid DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []behavior.ActionEvent{}
	for rows.Next() {
		var (
			ev      behavior.ActionEvent
			success int
			ts      int64
		)
		if err := rows.Scan(&ev.ActionID, &ev.AgentID, &ev.ConnectionID, &ev.Behavior, &ev.ActionType, &success, &ev.Message, &ts, &ev.DurationMs); err != nil {
			return nil, err
		}
		ev.Success = success != 0
		ev.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Agents returns every agent record ever indexed, terminated ones included,
// oldest first.
func (s *SQLiteIndex) Agents() ([]behavior.Record, error) {
	rows, err := s.db.Query(`SELECT agent_id,name,bot_id,profile,status,created_at,last_action_at,action_count
		FROM agents ORDER BY created_at, agent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []behavior.Record{}
	for rows.Next() {
		var (
			rec     behavior.Record
			status  string
			created int64
			last    sql.NullInt64
		)
		if err := rows.Scan(&rec.AgentID, &rec.Name, &rec.ConnectionID, &rec.Profile, &status, &created, &last, &rec.ActionCount); err != nil {
			return nil, err
		}
		rec.Status = behavior.Status(status)
		rec.CreatedAt = time.UnixMilli(created).UTC()
		if last.Valid {
			t := time.UnixMilli(last.Int64).UTC()
			rec.LastActionAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO action_events(action_id,agent_id,bot_id,behavior,action_type,success,message,ts,duration_ms) VALUES(?,?,?,?,?,?,?,?,?)`)
	bumpAgent, _ := s.db.Prepare(`UPDATE agents SET action_count=action_count+1, last_action_at=? WHERE agent_id=?`)
	upsertAgent, _ := s.db.Prepare(`INSERT INTO agents(agent_id,name,bot_id,profile,status,created_at,last_action_at,action_count) VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(agent_id) DO UPDATE SET name=excluded.name, bot_id=excluded.bot_id, profile=excluded.profile, status=excluded.status,
			last_action_at=COALESCE(excluded.last_action_at, agents.last_action_at), action_count=MAX(excluded.action_count, agents.action_count)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAction, bumpAgent, upsertAgent} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// Reads share the single connection, so an idle queue commits right away
	// instead of holding the transaction open.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || len(s.ch) == 0 || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAction:
			ev := r.action
			if insertAction == nil {
				break
			}
			ts := ev.Timestamp.UnixMilli()
			if _, err := tx.Stmt(insertAction).Exec(
				ev.ActionID,
				ev.AgentID,
				ev.ConnectionID,
				ev.Behavior,
				ev.ActionType,
				boolInt(ev.Success),
				ev.Message,
				ts,
				ev.DurationMs,
			); err != nil {
				rollback()
				continue
			}
			opCount++
			if bumpAgent != nil {
				if _, err := tx.Stmt(bumpAgent).Exec(ts, ev.AgentID); err != nil {
					rollback()
					continue
				}
			}
			s.written.Add(1)

		case reqAgent:
			rec := r.agent
			if upsertAgent == nil {
				break
			}
			var last any
			if rec.LastActionAt != nil {
				last = rec.LastActionAt.UnixMilli()
			}
			if _, err := tx.Stmt(upsertAgent).Exec(
				rec.AgentID,
				rec.Name,
				rec.ConnectionID,
				rec.Profile,
				string(rec.Status),
				rec.CreatedAt.UnixMilli(),
				last,
				rec.ActionCount,
			); err != nil {
				rollback()
				continue
			}
			opCount++
			s.written.Add(1)
		}
		flushIfNeeded()
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
