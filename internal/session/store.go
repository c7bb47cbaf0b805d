// internal/session/store.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/user/stickersmith/internal/types"
)

// ErrBusy is returned by Begin while the chat already has a generation
// in flight.
var ErrBusy = errors.New("a generation is already running for this chat")

// Store tracks the generation session of each chat. One chat runs at
// most one generation at a time; finished sessions linger so the last
// outcome can be reported, and the sweeper reaps them later.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*types.GenerationSession
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*types.GenerationSession)}
}

// Begin registers a processing session for the chat. It fails with
// ErrBusy while a previous session is still processing.
func (s *Store) Begin(chatID, userID int64) (*types.GenerationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[chatID]; ok && existing.State == types.SessionProcessing {
		return nil, ErrBusy
	}

	sess := &types.GenerationSession{
		ChatID:    chatID,
		UserID:    userID,
		State:     types.SessionProcessing,
		StartedAt: time.Now().UTC(),
	}
	s.sessions[chatID] = sess

	copied := *sess
	return &copied, nil
}

// Finish moves the chat's session to a terminal state. Unknown chats
// are ignored.
func (s *Store) Finish(chatID int64, state types.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[chatID]; ok {
		sess.State = state
	}
}

// Get returns a copy of the chat's most recent session.
func (s *Store) Get(chatID int64) (*types.GenerationSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return nil, false
	}
	copied := *sess
	return &copied, true
}

// Active returns the number of sessions currently processing.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.State == types.SessionProcessing {
			n++
		}
	}
	return n
}

// ReapStale drops sessions started more than maxAge ago, including ones
// stuck in processing after a crash mid-run. Returns how many were
// removed.
func (s *Store) ReapStale(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for chatID, sess := range s.sessions {
		if sess.StartedAt.Before(cutoff) {
			delete(s.sessions, chatID)
			removed++
		}
	}
	return removed
}
