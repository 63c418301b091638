package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"

	"github.com/ignite/tubefeed/internal/domain"
	"github.com/ignite/tubefeed/internal/gmail"
	"github.com/ignite/tubefeed/internal/queue"
	"github.com/ignite/tubefeed/internal/ranking"
	"github.com/ignite/tubefeed/internal/store"
	"github.com/ignite/tubefeed/internal/youtube"
)

func setupMockDB(t *testing.T) (*store.Store, *queue.Queue, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return store.New(db), queue.New(db, 2*time.Second), mock, func() { db.Close() }
}

func mustJob(t *testing.T, payload any) *queue.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{ID: uuid.New(), Payload: data, Attempts: 1, MaxAttempts: 3}
}

type fakeFetcher struct {
	meta  map[string]*domain.VideoMetadata
	err   error
	calls int
}

func (f *fakeFetcher) GetMetadata(_ context.Context, _ []string) (map[string]*domain.VideoMetadata, error) {
	f.calls++
	return f.meta, f.err
}

func TestEnricherQuotaParksJob(t *testing.T) {
	st, q, _, cleanup := setupMockDB(t)
	defer cleanup()

	e := NewMetadataEnricher(st, q, &fakeFetcher{err: youtube.ErrQuotaExceeded}, 3)
	e.now = func() time.Time {
		return time.Date(2026, 8, 20, 22, 0, 0, 0, time.UTC)
	}

	job := mustJob(t, domain.EnrichPayload{
		UserID:   uuid.New(),
		VideoIDs: []string{"dQw4w9WgXcQ"},
		LinkIDs:  []uuid.UUID{uuid.New()},
	})

	err := e.Handle(context.Background(), job)
	var rq *RequeueError
	if !errors.As(err, &rq) {
		t.Fatalf("err = %v, want RequeueError", err)
	}
	// Two hours to UTC midnight plus the margin.
	want := 2*time.Hour + quotaResetMargin
	if rq.Delay != want {
		t.Errorf("delay = %s, want %s", rq.Delay, want)
	}
}

func TestEnricherPersistsAndFansOut(t *testing.T) {
	st, q, mock, cleanup := setupMockDB(t)
	defer cleanup()

	fetcher := &fakeFetcher{meta: map[string]*domain.VideoMetadata{
		"dQw4w9WgXcQ": {VideoID: "dQw4w9WgXcQ", Title: "Go Concurrency Patterns"},
	}}
	e := NewMetadataEnricher(st, q, fetcher, 3)

	mock.ExpectExec("INSERT INTO video_metadata").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO job_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := mustJob(t, domain.EnrichPayload{
		UserID:   uuid.New(),
		VideoIDs: []string{"dQw4w9WgXcQ"},
		LinkIDs:  []uuid.UUID{uuid.New()},
	})
	if err := e.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want 1", fetcher.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// Playlist-only links carry no video ids but still deserve a scoring pass.
func TestEnricherNoVideosStillRanks(t *testing.T) {
	st, q, mock, cleanup := setupMockDB(t)
	defer cleanup()

	fetcher := &fakeFetcher{}
	e := NewMetadataEnricher(st, q, fetcher, 3)

	mock.ExpectExec("INSERT INTO job_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := mustJob(t, domain.EnrichPayload{
		UserID:  uuid.New(),
		LinkIDs: []uuid.UUID{uuid.New()},
	})
	if err := e.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times for empty video list", fetcher.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// fakeMailbox scripts the message fetch; the other calls are never reached
// in these tests.
type fakeMailbox struct {
	msg    *gmail.Message
	getErr error
}

func (m *fakeMailbox) Profile(context.Context) (string, uint64, error) { return "", 0, nil }

func (m *fakeMailbox) ListHistory(context.Context, string, string) ([]string, string, uint64, error) {
	return nil, "", 0, nil
}

func (m *fakeMailbox) ListMessages(context.Context, string, int64, string) ([]string, string, error) {
	return nil, "", nil
}

func (m *fakeMailbox) GetMessage(context.Context, string) (*gmail.Message, error) {
	return m.msg, m.getErr
}

func (m *fakeMailbox) ThreadSize(context.Context, string) (int, error) { return 1, nil }

// A message deleted between sync and processing 404s on fetch; the job is
// dropped as done rather than burning retries.
func TestProcessorDropsDeletedMessage(t *testing.T) {
	st, q, mock, cleanup := setupMockDB(t)
	defer cleanup()

	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("FROM users").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "access_token", "refresh_token", "token_expiry",
			"history_cursor", "needs_reauth", "learning_goals", "created_at", "updated_at",
		}).AddRow(userID, "u@example.com", "at", "rt", now, "100", false, []byte("{}"), now, now))

	factory := func(ctx context.Context, user *domain.User) (gmail.Mailbox, error) {
		return &fakeMailbox{getErr: &googleapi.Error{Code: 404}}, nil
	}

	p := NewEmailProcessor(st, q, factory, 3, 3)
	job := mustJob(t, domain.EmailProcessPayload{UserID: userID, MessageID: "gone-msg"})
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	// No email insert and no fan-out: expectations stop at the user load.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProcessorFanOutPartitions(t *testing.T) {
	st, q, mock, cleanup := setupMockDB(t)
	defer cleanup()

	userID := uuid.New()
	missing := &domain.Link{ID: uuid.New(), VideoID: "aaaaaaaaaaa"}
	known := &domain.Link{ID: uuid.New(), VideoID: "bbbbbbbbbbb"}
	playlistOnly := &domain.Link{ID: uuid.New(), PlaylistID: "PLx"}

	mock.ExpectQuery("FROM unnest").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("aaaaaaaaaaa"))
	mock.ExpectExec("INSERT INTO job_queue").
		WithArgs(sqlmock.AnyArg(), domain.QueueEnrich, sqlmock.AnyArg(), "enrich:base", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO job_queue").
		WithArgs(sqlmock.AnyArg(), domain.QueueRankCompute, sqlmock.AnyArg(), "rank:base", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := NewEmailProcessor(st, q, nil, 3, 3)
	links := []*domain.Link{missing, known, playlistOnly}
	if err := p.fanOut(context.Background(), userID, links, "base"); err != nil {
		t.Fatalf("fanOut: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestScorerMissingUserIsNoop(t *testing.T) {
	st, _, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s := NewLinkScorer(st, ranking.NewRanker(ranking.DefaultWeights, 0.7, 0.4), 30)
	job := mustJob(t, domain.RankComputePayload{
		UserID:  uuid.New(),
		LinkIDs: []uuid.UUID{uuid.New()},
	})
	if err := s.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestScorerScoresLink(t *testing.T) {
	st, _, mock, cleanup := setupMockDB(t)
	defer cleanup()

	userID := uuid.New()
	linkID := uuid.New()
	emailID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("FROM users").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "access_token", "refresh_token", "token_expiry",
			"history_cursor", "needs_reauth", "learning_goals", "created_at", "updated_at",
		}).AddRow(userID, "u@example.com", "at", "rt", now, "100", false, []byte("{golang}"), now, now))

	mock.ExpectQuery("FROM youtube_links").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "email_id", "video_id", "playlist_id",
			"canonical_url", "is_duplicate", "extracted_at",
		}).AddRow(linkID, userID, emailID, "dQw4w9WgXcQ", "",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ", false, now))

	mock.ExpectQuery("FROM video_metadata").
		WillReturnRows(sqlmock.NewRows([]string{
			"video_id", "title", "channel_id", "channel_title", "published_at",
			"duration_seconds", "category", "description_keywords",
			"thumbnail_url", "view_count", "like_count", "fetched_at",
		}).AddRow("dQw4w9WgXcQ", "Golang deep dive", "ch1", "Go Channel", now,
			600, "28", []byte("{golang,concurrency}"), "https://img", 1000, 50, now))

	mock.ExpectQuery("FROM emails").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "message_id", "thread_id", "sender_address", "sender_name",
			"subject", "received_at", "snippet", "labels", "thread_reply_count",
			"is_thread_reply", "created_at",
		}).AddRow(emailID, userID, "msg-1", "thr-1", "alice@example.com", "Alice",
			"Go links", now, "snippet", []byte("{INBOX}"), 2, false, now))

	mock.ExpectQuery("FROM sender_stats").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	mock.ExpectExec("INSERT INTO rankings").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewLinkScorer(st, ranking.NewRanker(ranking.DefaultWeights, 0.7, 0.4), 30)
	job := mustJob(t, domain.RankComputePayload{UserID: userID, LinkIDs: []uuid.UUID{linkID}})
	if err := s.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRequeueDetection(t *testing.T) {
	base := &RequeueError{Delay: time.Minute, Reason: "quota"}
	if !isRequeue(base) {
		t.Error("bare RequeueError not detected")
	}
	if !isRequeue(fmt.Errorf("handler: %w", base)) {
		t.Error("wrapped RequeueError not detected")
	}
	if isRequeue(errors.New("plain failure")) {
		t.Error("plain error misdetected as requeue")
	}
}
