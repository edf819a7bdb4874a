package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optiview/optiview/internal/errors"
)

// Info is a point-in-time description of a session for listings.
type Info struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	StudyLoaded bool      `json:"study_loaded"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Rows        int       `json:"rows,omitempty"`
	TableSource string    `json:"table_source,omitempty"`
}

// Manager owns the live sessions. Sessions are independent; the manager only
// hands them out and enforces the session cap.
type Manager struct {
	log         *slog.Logger
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. maxSessions caps concurrent sessions
// (0 means unlimited).
func NewManager(log *slog.Logger, maxSessions int) *Manager {
	return &Manager{
		log:         log,
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
	}
}

// Create registers a new empty session and returns it.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, errors.Newf(errors.ErrCategorySelection, errors.CodeSessionLimit,
			"session limit of %d reached", m.maxSessions)
	}

	s := newSession(uuid.NewString(), m.log)
	m.sessions[s.id] = s

	m.log.Info("session created", "session", s.id, "active", len(m.sessions))
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.CodeSessionNotFound,
			fmt.Sprintf("session %s does not exist", id))
	}
	return s, nil
}

// Delete removes the session with the given id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return errors.NewNotFoundError(errors.CodeSessionNotFound,
			fmt.Sprintf("session %s does not exist", id))
	}
	delete(m.sessions, id)

	m.log.Info("session deleted", "session", id, "active", len(m.sessions))
	return nil
}

// List returns a snapshot of all sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Info describes the session for listings.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:        s.id,
		CreatedAt: s.createdAt,
	}
	if s.study != nil {
		info.StudyLoaded = true
		info.Fingerprint = fmt.Sprintf("%016x", s.study.Fingerprint)
		info.Rows = s.study.Data.RowCount()
		info.TableSource = s.study.TableSource
	}
	return info
}
