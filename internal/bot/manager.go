package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentarena.ai/internal/bridge"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

// ValidName reports whether name is an acceptable in-world display name.
func ValidName(name string) bool { return validName.MatchString(name) }

type ManagerConfig struct {
	MaxConnections int
	ConnectTimeout time.Duration

	// Defaults applied to CreateParams fields left empty.
	URL     string
	Host    string
	Port    int
	Version string
	Auth    string
}

type CreateParams struct {
	DisplayName string
	URL         string
	Host        string
	Port        int
	Version     string
	Auth        string
}

type Manager struct {
	cfg    ManagerConfig
	dialer bridge.Dialer
	logger *log.Logger

	mu        sync.Mutex
	conns     map[string]*Connection
	pending   map[string]struct{} // display names being created
	listeners []Listener
	closed    bool
}

func NewManager(cfg ManagerConfig, dialer bridge.Dialer, logger *log.Logger) *Manager {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger,
		conns:   map[string]*Connection{},
		pending: map[string]struct{}{},
	}
}

// Subscribe registers l for lifecycle and connection events.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Create admits, connects and registers a new connection. It returns only
// after the agent has spawned or the attempt failed; a failed attempt leaves
// nothing registered.
func (m *Manager) Create(ctx context.Context, p CreateParams) (ConnectionState, error) {
	if !ValidName(p.DisplayName) {
		return ConnectionState{}, &Error{Code: ErrInvalidName, Message: fmt.Sprintf("invalid username %q: must be 1-16 characters of letters, digits or underscore", p.DisplayName)}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ConnectionState{}, &Error{Code: ErrClosed, Message: "manager is closed"}
	}
	if len(m.conns)+len(m.pending) >= m.cfg.MaxConnections {
		m.mu.Unlock()
		return ConnectionState{}, &Error{Code: ErrAtCapacity, Message: fmt.Sprintf("Maximum concurrent bots (%d) reached", m.cfg.MaxConnections)}
	}
	if m.nameTakenLocked(p.DisplayName) {
		m.mu.Unlock()
		return ConnectionState{}, &Error{Code: ErrDuplicateName, Message: fmt.Sprintf("A bot with username %q already exists", p.DisplayName)}
	}
	m.pending[p.DisplayName] = struct{}{}
	m.mu.Unlock()

	cfg := m.withDefaults(p)
	conn := NewConnection(cfg, m.dialer, m.onConnEvent, m.logger)

	cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	err := conn.Connect(cctx)
	cancel()

	m.mu.Lock()
	delete(m.pending, p.DisplayName)
	if err == nil && m.closed {
		err = fmt.Errorf("manager closed during connect")
	}
	if err != nil {
		m.mu.Unlock()
		conn.Disconnect()
		m.logger.Printf("create %s failed: %v", p.DisplayName, err)
		return ConnectionState{}, &Error{Code: ErrConnectFailed, Message: fmt.Sprintf("failed to connect %s: %v", p.DisplayName, err), Err: err}
	}
	m.conns[cfg.ConnectionID] = conn
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	st := conn.State()
	m.logger.Printf("created %s (%s)", cfg.DisplayName, cfg.ConnectionID)
	for _, l := range listeners {
		l.ConnectionCreated(st)
	}
	return st, nil
}

func (m *Manager) nameTakenLocked(name string) bool {
	if _, ok := m.pending[name]; ok {
		return true
	}
	for _, c := range m.conns {
		if c.DisplayName() == name && c.Status().Live() {
			return true
		}
	}
	return false
}

func (m *Manager) withDefaults(p CreateParams) Config {
	cfg := Config{
		ConnectionID: uuid.NewString(),
		DisplayName:  p.DisplayName,
		URL:          p.URL,
		Host:         p.Host,
		Port:         p.Port,
		Version:      p.Version,
		Auth:         p.Auth,
	}
	if cfg.URL == "" {
		cfg.URL = m.cfg.URL
	}
	if cfg.Host == "" {
		cfg.Host = m.cfg.Host
	}
	if cfg.Port == 0 {
		cfg.Port = m.cfg.Port
	}
	if cfg.Version == "" {
		cfg.Version = m.cfg.Version
	}
	if cfg.Auth == "" {
		cfg.Auth = m.cfg.Auth
	}
	return cfg
}

func (m *Manager) onConnEvent(ev Event) {
	m.mu.Lock()
	_, registered := m.conns[ev.ConnectionID]
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()
	if !registered {
		return
	}
	for _, l := range listeners {
		l.ConnectionEvent(ev)
	}
}

func (m *Manager) Get(id string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	return c, ok
}

func (m *Manager) Has(id string) bool {
	_, ok := m.Get(id)
	return ok
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) State(id string) (ConnectionState, bool) {
	c, ok := m.Get(id)
	if !ok {
		return ConnectionState{}, false
	}
	return c.State(), true
}

// States returns a snapshot of every registered connection, ordered by
// display name.
func (m *Manager) States() []ConnectionState {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	out := make([]ConnectionState, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.State())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

// Remove disconnects and unregisters id. It reports false if id is unknown.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	c, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()
	if !ok {
		return false
	}

	c.Disconnect()
	m.logger.Printf("removed %s (%s)", c.DisplayName(), id)
	for _, l := range listeners {
		l.ConnectionRemoved(id)
	}
	return true
}

func (m *Manager) RemoveAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Remove(id)
	}
}

// Close removes every connection and refuses further creates.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.RemoveAll()
	return nil
}
