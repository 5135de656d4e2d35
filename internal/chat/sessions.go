package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for ids that were never created, were
// ended, or have been evicted.
var ErrSessionNotFound = errors.New("session not found")

// Session is the state of one conversation.
type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Sessions stores conversations between messages.
type Sessions interface {
	// Create opens an empty session under a new id.
	Create(ctx context.Context) (*Session, error)
	// Get returns a copy of the session.
	Get(ctx context.Context, id string) (*Session, error)
	// Append adds turns to the session, creating it under id when it does
	// not exist, and returns the updated copy.
	Append(ctx context.Context, id string, turns ...Turn) (*Session, error)
	// Delete ends the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// Ensure MemorySessions implements the interface.
var _ Sessions = (*MemorySessions)(nil)

// MemorySessions is a bounded, idle-expiring in-process session cache.
// When full, the session seen least recently is evicted to make room.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	max      int
	idleTTL  time.Duration
	now      func() time.Time
}

func NewMemorySessions(maxSessions int, idleTTL time.Duration) *MemorySessions {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &MemorySessions{
		sessions: make(map[string]*Session),
		max:      maxSessions,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (m *MemorySessions) Create(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s := &Session{ID: uuid.NewString(), CreatedAt: now, LastSeen: now}
	m.insertLocked(s)
	return clone(s), nil
}

func (m *MemorySessions) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.liveLocked(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return clone(s), nil
}

func (m *MemorySessions) Append(_ context.Context, id string, turns ...Turn) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s, ok := m.liveLocked(id)
	if !ok {
		s = &Session{ID: id, CreatedAt: now}
		m.insertLocked(s)
	}
	s.Turns = append(s.Turns, turns...)
	s.LastSeen = now
	return clone(s), nil
}

func (m *MemorySessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len is the number of sessions held, expired ones included until swept.
func (m *MemorySessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes every idle session and returns how many were removed.
func (m *MemorySessions) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

// RunJanitor sweeps every interval until ctx is done.
func (m *MemorySessions) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Info("Evicted idle chat sessions.", "count", n)
			}
		}
	}
}

func (m *MemorySessions) liveLocked(id string) (*Session, bool) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.expired(s, m.now()) {
		delete(m.sessions, id)
		return nil, false
	}
	return s, true
}

func (m *MemorySessions) expired(s *Session, now time.Time) bool {
	return now.Sub(s.LastSeen) > m.idleTTL
}

func (m *MemorySessions) sweepLocked(now time.Time) int {
	n := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *MemorySessions) insertLocked(s *Session) {
	if len(m.sessions) >= m.max {
		m.sweepLocked(m.now())
	}
	for len(m.sessions) >= m.max {
		var oldest *Session
		for _, c := range m.sessions {
			if oldest == nil || c.LastSeen.Before(oldest.LastSeen) {
				oldest = c
			}
		}
		slog.Warn("Session cache full. Evicting least recently seen session.", "sessionId", oldest.ID)
		delete(m.sessions, oldest.ID)
	}
	m.sessions[s.ID] = s
}

func clone(s *Session) *Session {
	cp := *s
	cp.Turns = slices.Clone(s.Turns)
	return &cp
}
