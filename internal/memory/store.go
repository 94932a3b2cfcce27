// Package memory holds per-session and per-user decision state.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/easeaico/storefront-cs/internal/types"
)

// DefaultTTL is how long an untouched session or user is retained.
const DefaultTTL = 30 * 24 * time.Hour

// Snapshot is the full persisted state.
type Snapshot struct {
	Sessions map[string]types.SessionState
	Users    map[string]types.UserState
}

// Repo persists state. Implementations must be safe for concurrent use.
type Repo interface {
	Load(ctx context.Context) (Snapshot, error)
	SaveSession(ctx context.Context, state types.SessionState) error
	SaveUser(ctx context.Context, state types.UserState) error
	DeleteSessions(ctx context.Context, ids []string) error
	DeleteUsers(ctx context.Context, hashes []string) error
}

// Entries removed by PruneExpired are marked dead; holders of a stale
// pointer look the key up again.
type sessionEntry struct {
	mu    sync.Mutex
	state types.SessionState
	dead  bool
}

type userEntry struct {
	mu    sync.Mutex
	state types.UserState
	dead  bool
}

// Store keeps state in memory behind per-key locks and writes through to a Repo.
type Store struct {
	repo    Repo
	nowFunc func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	users    map[string]*userEntry
}

// NewStore returns an empty store. repo may be nil for a purely in-memory store.
func NewStore(repo Repo) *Store {
	return &Store{
		repo:     repo,
		nowFunc:  time.Now,
		sessions: map[string]*sessionEntry{},
		users:    map[string]*userEntry{},
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.nowFunc = now
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.nowFunc()
}

// Load replaces the in-memory state with the repo snapshot.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}

	sessions := make(map[string]*sessionEntry, len(snap.Sessions))
	for id, st := range snap.Sessions {
		if id == "" {
			continue
		}
		st.SessionID = id
		st.Normalize()
		sessions[id] = &sessionEntry{state: st}
	}
	users := make(map[string]*userEntry, len(snap.Users))
	for hash, st := range snap.Users {
		if hash == "" {
			continue
		}
		st.UserHash = hash
		st.Normalize()
		users[hash] = &userEntry{state: st}
	}

	s.mu.Lock()
	s.sessions = sessions
	s.users = users
	s.mu.Unlock()
	return nil
}

func (s *Store) sessionEntry(id, userHash string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		e = &sessionEntry{state: types.NewSessionState(id, userHash, s.nowFunc())}
		s.sessions[id] = e
	}
	return e
}

func (s *Store) userEntry(hash string) *userEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[hash]
	if !ok {
		e = &userEntry{state: types.NewUserState(hash, s.nowFunc())}
		s.users[hash] = e
	}
	return e
}

// lockSession returns the live entry for id with its lock held.
func (s *Store) lockSession(id, userHash string) *sessionEntry {
	for {
		e := s.sessionEntry(id, userHash)
		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// lockUser returns the live entry for hash with its lock held.
func (s *Store) lockUser(hash string) *userEntry {
	for {
		e := s.userEntry(hash)
		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// Session returns a copy of the session state, creating defaults on first use.
func (s *Store) Session(id, userHash string) types.SessionState {
	e := s.lockSession(id, userHash)
	defer e.mu.Unlock()
	return e.state.Clone()
}

// UpdateSession applies fn under the session lock, stamps updated_at and
// persists the result. Persistence errors are logged; the in-memory update
// always succeeds.
func (s *Store) UpdateSession(ctx context.Context, id, userHash string, fn func(*types.SessionState)) types.SessionState {
	e := s.lockSession(id, userHash)
	defer e.mu.Unlock()

	next := e.state.Clone()
	fn(&next)
	next.SessionID = id
	if next.UserHash == "" {
		next.UserHash = userHash
	}
	next.Normalize()
	next.UpdatedAt = s.nowFunc()
	e.state = next

	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, next); err != nil {
			slog.Warn("failed to persist session state", "session_id", id, "error", err.Error())
		}
	}
	return next.Clone()
}

// User returns a copy of the user state, creating defaults on first use.
func (s *Store) User(hash string) types.UserState {
	e := s.lockUser(hash)
	defer e.mu.Unlock()
	return e.state.Clone()
}

// UpdateUser applies fn under the user lock and persists the result.
func (s *Store) UpdateUser(ctx context.Context, hash string, fn func(*types.UserState)) types.UserState {
	e := s.lockUser(hash)
	defer e.mu.Unlock()

	next := e.state.Clone()
	fn(&next)
	next.UserHash = hash
	next.Normalize()
	next.UpdatedAt = s.nowFunc()
	e.state = next

	if s.repo != nil {
		if err := s.repo.SaveUser(ctx, next); err != nil {
			slog.Warn("failed to persist user state", "user_hash", hash, "error", err.Error())
		}
	}
	return next.Clone()
}

// Counts returns the number of cached sessions and users.
func (s *Store) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), len(s.users)
}

// PruneExpired drops sessions and users whose updated_at is older than ttl.
// A non-positive ttl uses DefaultTTL. Entries locked by an in-flight update
// are skipped. Pruned entries stay locked until the repo delete finishes so
// a concurrent update lands after it.
func (s *Store) PruneExpired(ctx context.Context, ttl time.Duration) (int, int) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cutoff := s.nowFunc().Add(-ttl)

	var (
		sessionIDs, userHashes []string
		deadSessions           []*sessionEntry
		deadUsers              []*userEntry
	)
	s.mu.Lock()
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if e.dead || !e.state.UpdatedAt.Before(cutoff) {
			e.mu.Unlock()
			continue
		}
		e.dead = true
		deadSessions = append(deadSessions, e)
		sessionIDs = append(sessionIDs, id)
	}
	for hash, e := range s.users {
		if !e.mu.TryLock() {
			continue
		}
		if e.dead || !e.state.UpdatedAt.Before(cutoff) {
			e.mu.Unlock()
			continue
		}
		e.dead = true
		deadUsers = append(deadUsers, e)
		userHashes = append(userHashes, hash)
	}
	s.mu.Unlock()

	if s.repo != nil {
		if len(sessionIDs) > 0 {
			if err := s.repo.DeleteSessions(ctx, sessionIDs); err != nil {
				slog.Warn("failed to delete expired sessions", "count", len(sessionIDs), "error", err.Error())
			}
		}
		if len(userHashes) > 0 {
			if err := s.repo.DeleteUsers(ctx, userHashes); err != nil {
				slog.Warn("failed to delete expired users", "count", len(userHashes), "error", err.Error())
			}
		}
	}

	s.mu.Lock()
	for i, id := range sessionIDs {
		if s.sessions[id] == deadSessions[i] {
			delete(s.sessions, id)
		}
	}
	for i, hash := range userHashes {
		if s.users[hash] == deadUsers[i] {
			delete(s.users, hash)
		}
	}
	s.mu.Unlock()
	for _, e := range deadSessions {
		e.mu.Unlock()
	}
	for _, e := range deadUsers {
		e.mu.Unlock()
	}

	if len(sessionIDs)+len(userHashes) > 0 {
		slog.Info("pruned expired memory", "sessions", len(sessionIDs), "users", len(userHashes))
	}
	return len(sessionIDs), len(userHashes)
}
