package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/tubefeed/internal/domain"
)

// EmailExists reports whether an email row already exists for the given
// message. The process handler calls this before any upstream fetch so a
// redelivered job short-circuits without spending API quota.
func (s *Store) EmailExists(ctx context.Context, userID uuid.UUID, messageID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM emails WHERE user_id = $1 AND message_id = $2)`
	err := s.db.QueryRowContext(ctx, query, userID, messageID).Scan(&exists)
	return exists, err
}

// GetEmail retrieves an email by ID. Returns nil without error when absent.
func (s *Store) GetEmail(ctx context.Context, id uuid.UUID) (*domain.Email, error) {
	query := `SELECT id, user_id, message_id, thread_id, sender_address, sender_name, subject,
			received_at, snippet, labels, thread_reply_count, is_thread_reply, created_at
		FROM emails WHERE id = $1`

	e := &domain.Email{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.UserID, &e.MessageID, &e.ThreadID, &e.SenderAddress, &e.SenderName,
		&e.Subject, &e.ReceivedAt, &e.Snippet, pq.Array(&e.Labels),
		&e.ThreadReplyCount, &e.IsThreadReply, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// SaveEmailWithLinks persists one processed message in a single transaction:
// the email row, its deduplicated link rows, and the sender_stats upsert.
// Links come in without IDs; inserted rows come back with IDs and the
// is_duplicate flag resolved. When the email row already exists the whole
// call is a no-op returning no links, which makes redelivery safe.
func (s *Store) SaveEmailWithLinks(ctx context.Context, email *domain.Email, linkRows []*domain.Link) ([]*domain.Link, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if email.ID == uuid.Nil {
		email.ID = uuid.New()
	}
	email.CreatedAt = time.Now()
	email.Snippet = domain.TruncateSnippet(email.Snippet)

	var emailID uuid.UUID
	insertEmail := `INSERT INTO emails (id, user_id, message_id, thread_id, sender_address,
			sender_name, subject, received_at, snippet, labels, thread_reply_count,
			is_thread_reply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, message_id) DO NOTHING
		RETURNING id`
	err = tx.QueryRowContext(ctx, insertEmail, email.ID, email.UserID, email.MessageID,
		email.ThreadID, email.SenderAddress, email.SenderName, email.Subject,
		email.ReceivedAt, email.Snippet, pq.Array(email.Labels),
		email.ThreadReplyCount, email.IsThreadReply, email.CreatedAt).Scan(&emailID)
	if err == sql.ErrNoRows {
		// Conflict: a concurrent or earlier delivery already persisted this
		// message. Idempotent success.
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, fmt.Errorf("insert email: %w", err)
	}
	email.ID = emailID

	var inserted []*domain.Link
	for _, l := range linkRows {
		l.EmailID = emailID
		l.UserID = email.UserID
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.ExtractedAt = time.Now()

		// is_duplicate captures whether this (user, video) pair was already
		// known before this message arrived.
		if l.VideoID != "" {
			dupQuery := `SELECT EXISTS(SELECT 1 FROM youtube_links WHERE user_id = $1 AND video_id = $2)`
			if err := tx.QueryRowContext(ctx, dupQuery, l.UserID, l.VideoID).Scan(&l.IsDuplicate); err != nil {
				return nil, fmt.Errorf("duplicate check: %w", err)
			}
		}

		insertLink := `INSERT INTO youtube_links (id, user_id, email_id, video_id, playlist_id,
				canonical_url, is_duplicate, extracted_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
			ON CONFLICT DO NOTHING`
		res, err := tx.ExecContext(ctx, insertLink, l.ID, l.UserID, l.EmailID, l.VideoID,
			l.PlaylistID, l.CanonicalURL, l.IsDuplicate, l.ExtractedAt)
		if err != nil {
			return nil, fmt.Errorf("insert link: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, l)
		}
	}

	upsertStats := `INSERT INTO sender_stats (user_id, sender_address, email_count, last_email_at, updated_at)
		VALUES ($1, $2, 1, $3, NOW())
		ON CONFLICT (user_id, sender_address) DO UPDATE SET
			email_count = sender_stats.email_count + 1,
			last_email_at = GREATEST(sender_stats.last_email_at, EXCLUDED.last_email_at),
			updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, upsertStats, email.UserID, email.SenderAddress, email.ReceivedAt); err != nil {
		return nil, fmt.Errorf("upsert sender stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetLinksByIDs loads link rows for a rank pass, preserving no particular order.
func (s *Store) GetLinksByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Link, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, user_id, email_id, COALESCE(video_id, ''), COALESCE(playlist_id, ''),
			canonical_url, is_duplicate, extracted_at
		FROM youtube_links WHERE id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*domain.Link
	for rows.Next() {
		l := &domain.Link{}
		if err := rows.Scan(&l.ID, &l.UserID, &l.EmailID, &l.VideoID, &l.PlaylistID,
			&l.CanonicalURL, &l.IsDuplicate, &l.ExtractedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// CountLinksExtracted counts link rows extracted in [start, end) for the
// coverage metric.
func (s *Store) CountLinksExtracted(ctx context.Context, userID uuid.UUID, start, end time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM youtube_links
		WHERE user_id = $1 AND extracted_at >= $2 AND extracted_at < $3`
	err := s.db.QueryRowContext(ctx, query, userID, start, end).Scan(&n)
	return n, err
}
