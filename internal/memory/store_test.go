package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/easeaico/storefront-cs/internal/types"
)

type mockRepo struct {
	mu       sync.Mutex
	snapshot Snapshot
	sessions map[string]types.SessionState
	users    map[string]types.UserState
	deleted  []string
	saveErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		sessions: map[string]types.SessionState{},
		users:    map[string]types.UserState{},
	}
}

func (r *mockRepo) Load(ctx context.Context) (Snapshot, error) {
	return r.snapshot, nil
}

func (r *mockRepo) SaveSession(ctx context.Context, state types.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.sessions[state.SessionID] = state
	return nil
}

func (r *mockRepo) SaveUser(ctx context.Context, state types.UserState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[state.UserHash] = state
	return nil
}

func (r *mockRepo) DeleteSessions(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ids...)
	return nil
}

func (r *mockRepo) DeleteUsers(ctx context.Context, hashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, hashes...)
	return nil
}

func TestStoreSessionDefaults(t *testing.T) {
	store := NewStore(nil)
	st := store.Session("s1", "u1")
	if st.SessionID != "s1" || st.UserHash != "u1" {
		t.Fatalf("unexpected identity: %+v", st)
	}
	if st.SentAddressStores == nil || st.AddressImageLastSentAtByStore == nil {
		t.Fatalf("expected initialized collections")
	}
	if st.LastIntent != "" || st.GeoFollowupRound != 0 {
		t.Fatalf("expected zero counters, got %+v", st)
	}
}

func TestStoreUpdatePersistsAndIsolatesCopies(t *testing.T) {
	repo := newMockRepo()
	store := NewStore(repo)
	ctx := context.Background()

	got := store.UpdateSession(ctx, "s1", "u1", func(s *types.SessionState) {
		s.AddressPromptCount = 2
		s.SentAddressStores = append(s.SentAddressStores, types.StoreJingan)
	})
	got.SentAddressStores[0] = "mutated"

	again := store.Session("s1", "u1")
	if again.AddressPromptCount != 2 || again.SentAddressStores[0] != types.StoreJingan {
		t.Fatalf("expected isolated state, got %+v", again)
	}
	if _, ok := repo.sessions["s1"]; !ok {
		t.Fatalf("expected session persisted")
	}
}

func TestStoreUpdateSurvivesRepoError(t *testing.T) {
	repo := newMockRepo()
	repo.saveErr = errors.New("disk full")
	store := NewStore(repo)
	st := store.UpdateSession(context.Background(), "s1", "u1", func(s *types.SessionState) {
		s.ContactWarmup = true
	})
	if !st.ContactWarmup || !store.Session("s1", "u1").ContactWarmup {
		t.Fatalf("expected in-memory update despite repo error")
	}
}

func TestStoreUserHashesBounded(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	for i := 0; i < types.MaxRecentReplyHashes+5; i++ {
		store.UpdateUser(ctx, "u1", func(u *types.UserState) {
			u.PushReplyHash(string(rune('a'+i%26)) + string(rune('0'+i/26)))
		})
	}
	u := store.User("u1")
	if len(u.RecentReplyHashes) != types.MaxRecentReplyHashes {
		t.Fatalf("expected %d hashes, got %d", types.MaxRecentReplyHashes, len(u.RecentReplyHashes))
	}
	if u.RecentReplyHashes[0] != "f0" {
		t.Fatalf("expected oldest entries dropped, first is %s", u.RecentReplyHashes[0])
	}
}

func TestStoreLoadNormalizesSnapshot(t *testing.T) {
	repo := newMockRepo()
	repo.snapshot = Snapshot{
		Sessions: map[string]types.SessionState{"s1": {AddressPromptCount: 1}},
		Users:    map[string]types.UserState{"u1": {VideoSent: true}},
	}
	store := NewStore(repo)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	st := store.Session("s1", "ignored")
	if st.SessionID != "s1" || st.AddressPromptCount != 1 || st.SentAddressStores == nil {
		t.Fatalf("unexpected loaded session: %+v", st)
	}
	if u := store.User("u1"); !u.VideoSent || u.UserHash != "u1" {
		t.Fatalf("unexpected loaded user: %+v", u)
	}
}

func TestStorePruneExpired(t *testing.T) {
	repo := newMockRepo()
	store := NewStore(repo)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	store.SetClock(func() time.Time { return now.Add(-40 * 24 * time.Hour) })
	store.UpdateSession(ctx, "old", "u-old", func(s *types.SessionState) {})
	store.UpdateUser(ctx, "u-old", func(u *types.UserState) {})

	store.SetClock(func() time.Time { return now.Add(-time.Hour) })
	store.UpdateSession(ctx, "fresh", "u-new", func(s *types.SessionState) {})

	store.SetClock(func() time.Time { return now })
	sessions, users := store.PruneExpired(ctx, 30*24*time.Hour)
	if sessions != 1 || users != 1 {
		t.Fatalf("expected 1 session and 1 user pruned, got %d/%d", sessions, users)
	}
	if n, _ := store.Counts(); n != 1 {
		t.Fatalf("expected 1 session left, got %d", n)
	}
	if len(repo.deleted) != 2 {
		t.Fatalf("expected deletes forwarded to repo, got %v", repo.deleted)
	}
}

func TestStoreConcurrentUpdatesDoNotLoseCounts(t *testing.T) {
	store := NewStore(newMockRepo())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.UpdateSession(ctx, "s1", "u1", func(s *types.SessionState) {
				s.AddressPromptCount++
			})
		}()
	}
	wg.Wait()
	if got := store.Session("s1", "u1").AddressPromptCount; got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestStorePruneSkipsEntryUnderUpdate(t *testing.T) {
	repo := newMockRepo()
	store := NewStore(repo)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	store.SetClock(func() time.Time { return now.Add(-40 * 24 * time.Hour) })
	store.UpdateSession(ctx, "s1", "u1", func(s *types.SessionState) {})

	store.SetClock(func() time.Time { return now })
	var pruned int
	store.UpdateSession(ctx, "s1", "u1", func(s *types.SessionState) {
		pruned, _ = store.PruneExpired(ctx, 30*24*time.Hour)
		s.AddressPromptCount = 3
	})
	if pruned != 0 {
		t.Fatalf("expected locked session to be skipped, got %d pruned", pruned)
	}
	if got := store.Session("s1", "u1").AddressPromptCount; got != 3 {
		t.Fatalf("expected update kept, got %d", got)
	}
	if len(repo.deleted) != 0 {
		t.Fatalf("expected no repo deletes, got %v", repo.deleted)
	}
	if sessions, _ := store.PruneExpired(ctx, 30*24*time.Hour); sessions != 0 {
		t.Fatalf("expected refreshed session to survive, got %d pruned", sessions)
	}
}

type orderedRepo struct {
	*mockRepo
	deleting chan struct{}
	release  chan struct{}
	events   []string
}

func (r *orderedRepo) SaveSession(ctx context.Context, state types.SessionState) error {
	r.mu.Lock()
	r.events = append(r.events, "save:"+state.SessionID)
	r.mu.Unlock()
	return r.mockRepo.SaveSession(ctx, state)
}

func (r *orderedRepo) DeleteSessions(ctx context.Context, ids []string) error {
	close(r.deleting)
	<-r.release
	r.mu.Lock()
	for _, id := range ids {
		r.events = append(r.events, "delete:"+id)
	}
	r.mu.Unlock()
	return r.mockRepo.DeleteSessions(ctx, ids)
}

func TestStoreUpdateDuringPruneLandsAfterDelete(t *testing.T) {
	repo := &orderedRepo{mockRepo: newMockRepo(), deleting: make(chan struct{}), release: make(chan struct{})}
	store := NewStore(repo)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	store.SetClock(func() time.Time { return now.Add(-40 * 24 * time.Hour) })
	store.UpdateSession(ctx, "s1", "u1", func(s *types.SessionState) { s.AddressPromptCount = 5 })
	store.SetClock(func() time.Time { return now })

	pruneDone := make(chan int)
	go func() {
		n, _ := store.PruneExpired(ctx, 30*24*time.Hour)
		pruneDone <- n
	}()
	<-repo.deleting

	updateDone := make(chan types.SessionState)
	go func() {
		updateDone <- store.UpdateSession(ctx, "s1", "u1", func(s *types.SessionState) { s.AddressPromptCount++ })
	}()
	close(repo.release)

	if n := <-pruneDone; n != 1 {
		t.Fatalf("expected 1 session pruned, got %d", n)
	}
	state := <-updateDone
	if state.AddressPromptCount != 1 {
		t.Fatalf("expected update applied to a fresh session, got count %d", state.AddressPromptCount)
	}

	repo.mu.Lock()
	events := append([]string(nil), repo.events...)
	repo.mu.Unlock()
	if last := events[len(events)-1]; last != "save:s1" {
		t.Fatalf("expected save after delete, got events %v", events)
	}
	if n, _ := store.Counts(); n != 1 {
		t.Fatalf("expected the new session cached, got %d", n)
	}
}
