package gmail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/tubefeed/internal/domain"
)

type fakeUserStore struct {
	cursors map[uuid.UUID]string
	reauth  map[uuid.UUID]bool
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		cursors: make(map[uuid.UUID]string),
		reauth:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeUserStore) UpdateCursor(_ context.Context, id uuid.UUID, cursor string) error {
	f.cursors[id] = cursor
	return nil
}

func (f *fakeUserStore) MarkNeedsReauth(_ context.Context, id uuid.UUID) error {
	f.reauth[id] = true
	return nil
}

type fakeEnqueuer struct {
	jobs []domain.EmailProcessPayload
	keys map[string]bool
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{keys: make(map[string]bool)}
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, queue string, payload any, key string, _ int) error {
	if queue != domain.QueueEmailProcess {
		return errors.New("unexpected queue " + queue)
	}
	if f.keys[key] {
		return nil // dedup
	}
	f.keys[key] = true
	f.jobs = append(f.jobs, payload.(domain.EmailProcessPayload))
	return nil
}

// fakeMailbox serves scripted history and listing pages.
type fakeMailbox struct {
	headCursor   uint64
	historyPages map[string][]string // pageToken -> ids; "" is the first page
	historyNext  map[string]string
	historyErr   error
	listIDs      []string
	listErr      error
	historyCalls int
}

func (f *fakeMailbox) Profile(context.Context) (string, uint64, error) {
	return "user@example.com", f.headCursor, nil
}

func (f *fakeMailbox) ListHistory(_ context.Context, _ string, pageToken string) ([]string, string, uint64, error) {
	f.historyCalls++
	if f.historyErr != nil {
		return nil, "", 0, f.historyErr
	}
	return f.historyPages[pageToken], f.historyNext[pageToken], f.headCursor, nil
}

func (f *fakeMailbox) ListMessages(_ context.Context, _ string, maxResults int64, _ string) ([]string, string, error) {
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	ids := f.listIDs
	if int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, "", nil
}

func (f *fakeMailbox) GetMessage(context.Context, string) (*Message, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMailbox) ThreadSize(context.Context, string) (int, error) {
	return 1, nil
}

func newTestSync(users UserStore, jobs Enqueuer, mb Mailbox) *Synchronizer {
	factory := func(context.Context, *domain.User) (Mailbox, error) { return mb, nil }
	return NewSynchronizer(users, jobs, factory, "", 50, 3)
}

func TestSyncUserIncremental(t *testing.T) {
	users := newFakeUserStore()
	jobs := newFakeEnqueuer()
	mb := &fakeMailbox{
		headCursor:   2000,
		historyPages: map[string][]string{"": {"m1", "m2"}, "p2": {"m3"}},
		historyNext:  map[string]string{"": "p2"},
	}
	user := &domain.User{ID: uuid.New(), HistoryCursor: "1000"}

	if err := newTestSync(users, jobs, mb).SyncUser(context.Background(), user); err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if len(jobs.jobs) != 3 {
		t.Errorf("enqueued %d jobs, want 3", len(jobs.jobs))
	}
	if users.cursors[user.ID] != "2000" {
		t.Errorf("cursor = %q, want 2000", users.cursors[user.ID])
	}
}

func TestSyncUserInitialSync(t *testing.T) {
	users := newFakeUserStore()
	jobs := newFakeEnqueuer()
	mb := &fakeMailbox{headCursor: 500, listIDs: []string{"m1", "m2", "m3"}}
	user := &domain.User{ID: uuid.New()} // no cursor

	if err := newTestSync(users, jobs, mb).SyncUser(context.Background(), user); err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if len(jobs.jobs) != 3 {
		t.Errorf("enqueued %d jobs, want 3", len(jobs.jobs))
	}
	if users.cursors[user.ID] != "500" {
		t.Errorf("cursor = %q, want 500 (head at sync start)", users.cursors[user.ID])
	}
}

func TestSyncUserExpiredCursorFallsBack(t *testing.T) {
	users := newFakeUserStore()
	jobs := newFakeEnqueuer()
	mb := &fakeMailbox{
		headCursor: 900,
		historyErr: ErrCursorExpired,
		listIDs:    []string{"m1"},
	}
	user := &domain.User{ID: uuid.New(), HistoryCursor: "1"}

	if err := newTestSync(users, jobs, mb).SyncUser(context.Background(), user); err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if len(jobs.jobs) != 1 {
		t.Errorf("enqueued %d jobs, want 1 from fallback", len(jobs.jobs))
	}
	if users.cursors[user.ID] != "900" {
		t.Errorf("cursor = %q, want 900", users.cursors[user.ID])
	}
}

func TestSyncUserRevokedMarksReauth(t *testing.T) {
	users := newFakeUserStore()
	jobs := newFakeEnqueuer()
	mb := &fakeMailbox{historyErr: ErrAuthorizationRevoked}
	user := &domain.User{ID: uuid.New(), HistoryCursor: "1000"}

	// Revocation is terminal for the pass, not an error to retry.
	if err := newTestSync(users, jobs, mb).SyncUser(context.Background(), user); err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if !users.reauth[user.ID] {
		t.Error("user not flagged for re-authorization")
	}
	if len(jobs.jobs) != 0 {
		t.Errorf("enqueued %d jobs after revocation, want 0", len(jobs.jobs))
	}
	if _, ok := users.cursors[user.ID]; ok {
		t.Error("cursor advanced after revocation")
	}
}

func TestSyncUserFailedPassLeavesCursor(t *testing.T) {
	users := newFakeUserStore()
	jobs := newFakeEnqueuer()
	mb := &fakeMailbox{historyErr: errors.New("network down")}
	user := &domain.User{ID: uuid.New(), HistoryCursor: "1000"}

	if err := newTestSync(users, jobs, mb).SyncUser(context.Background(), user); err == nil {
		t.Fatal("expected error from failing pass")
	}
	if _, ok := users.cursors[user.ID]; ok {
		t.Error("cursor advanced despite failed pass")
	}
	// Three attempts before giving up.
	if mb.historyCalls != 3 {
		t.Errorf("history calls = %d, want 3", mb.historyCalls)
	}
}

func TestSyncUserRedeliveryDeduplicates(t *testing.T) {
	users := newFakeUserStore()
	jobs := newFakeEnqueuer()
	mb := &fakeMailbox{
		headCursor:   2000,
		historyPages: map[string][]string{"": {"m1", "m2"}},
		historyNext:  map[string]string{},
	}
	user := &domain.User{ID: uuid.New(), HistoryCursor: "1000"}

	sync := newTestSync(users, jobs, mb)
	ctx := context.Background()
	if err := sync.SyncUser(ctx, user); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := sync.SyncUser(ctx, user); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(jobs.jobs) != 2 {
		t.Errorf("enqueued %d jobs after two identical passes, want 2", len(jobs.jobs))
	}
}

func TestSyncRetryBackoffIsBounded(t *testing.T) {
	users := newFakeUserStore()
	jobs := newFakeEnqueuer()
	mb := &fakeMailbox{historyErr: errors.New("flaky")}
	user := &domain.User{ID: uuid.New(), HistoryCursor: "1000"}

	start := time.Now()
	_ = newTestSync(users, jobs, mb).SyncUser(context.Background(), user)
	// Two jittered sleeps with base 1s, caps well under the max.
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("retries took %s, backoff not bounded", elapsed)
	}
}
