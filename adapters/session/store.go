package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"promptrelay/domain"
	"promptrelay/utils/log"
)

const (
	// Conversations idle longer than this are treated as an expired
	// browser session and dropped.
	defaultTTL = 30 * time.Minute

	sweepInterval = 5 * time.Minute
)

type entry struct {
	mu       sync.Mutex
	conv     *domain.Conversation
	lastSeen time.Time
}

// Store keeps one conversation per session ID, in memory only. A
// conversation is created lazily on first access and lives until its
// session goes idle past the TTL. Access to a conversation is
// serialized per session: two requests carrying the same cookie take
// turns rather than racing on the shared history.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		ttl:     defaultTTL,
	}
}

// WithConversation runs fn with the session's conversation, creating an
// empty one if the session is new or has expired. The session's lock is
// held for the whole call, so fn may freely mutate the conversation.
func (s *Store) WithConversation(sessionID string, fn func(*domain.Conversation) error) error {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok {
		e = &entry{conv: &domain.Conversation{}}
		s.entries[sessionID] = e
	}
	e.lastSeen = time.Now()
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.conv)
}

// Len reports how many sessions currently hold a conversation.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunJanitor sweeps expired sessions forever. Run it from main with
// `go store.RunJanitor()`.
func (s *Store) RunJanitor() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		if removed := s.sweep(time.Now()); removed > 0 {
			log.With(zap.Int("sessions", removed)).Info("expired idle sessions")
		}
	}
}

func (s *Store) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if now.Sub(e.lastSeen) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
