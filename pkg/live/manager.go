package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/recera/reflow/internal/session"
)

// ErrUnknownSession is returned by Open for an id with no session when
// the manager has no factory.
var ErrUnknownSession = errors.New("unknown session")

const minReapInterval = 10 * time.Millisecond

// Factory creates the session for an id seen for the first time.
type Factory func(id string) (*session.Session, error)

// Manager owns the live sessions, keyed by id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  Factory
	logger   *slog.Logger
}

type entry struct {
	s     *session.Session
	conns int
}

// NewManager creates a manager. factory may be nil, in which case only
// sessions added with Add can be opened.
func NewManager(factory Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		factory:  factory,
		logger:   logger,
	}
}

// Add registers s under its ID, replacing and closing any previous one.
func (m *Manager) Add(s *session.Session) {
	m.mu.Lock()
	old := m.sessions[s.ID]
	m.sessions[s.ID] = &entry{s: s}
	m.mu.Unlock()
	if old != nil {
		old.s.Close()
	}
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.s, true
}

// Open returns the session for id, creating it with the factory when it
// does not exist yet.
func (m *Manager) Open(id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		return e.s, nil
	}
	if m.factory == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownSession, id)
	}
	s, err := m.factory(id)
	if err != nil {
		return nil, fmt.Errorf("create session %q: %w", id, err)
	}
	m.sessions[id] = &entry{s: s}
	m.logger.Info("session created", "id", id)
	return s, nil
}

// attach and detach count the connections using a session so Reap
// leaves connected sessions alone.
func (m *Manager) attach(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		e.conns++
	}
}

func (m *Manager) detach(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok && e.conns > 0 {
		e.conns--
	}
}

// Remove closes and forgets the session for id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		e.s.Close()
	}
}

// IDs returns the ids of all sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes sessions without connections that have been idle longer
// than maxIdle and returns how many were closed.
func (m *Manager) Reap(maxIdle time.Duration) int {
	m.mu.Lock()
	var stale []*entry
	for id, e := range m.sessions {
		if e.conns == 0 && time.Since(e.s.LastAccess()) > maxIdle {
			stale = append(stale, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		m.logger.Info("session expired", "id", e.s.ID)
		e.s.Close()
	}
	return len(stale)
}

// RunReaper calls Reap every interval until ctx is done. Intervals under
// minReapInterval are raised to it.
func (m *Manager) RunReaper(ctx context.Context, interval, maxIdle time.Duration) error {
	interval = max(interval, minReapInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap(maxIdle)
		}
	}
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range sessions {
		e.s.Close()
	}
}
