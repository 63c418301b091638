package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/tubefeed/internal/domain"
)

const userColumns = `id, email, access_token, refresh_token, token_expiry,
	history_cursor, needs_reauth, learning_goals, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	u := &domain.User{}
	var cursor sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.AccessToken, &u.RefreshToken, &u.TokenExpiry,
		&cursor, &u.NeedsReauth, pq.Array(&u.LearningGoals), &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.HistoryCursor = cursor.String
	return u, nil
}

// GetUser retrieves a user by ID. Returns nil without error when absent.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by mailbox address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// UpsertUser creates a user on first authorization or refreshes the stored
// credential on re-authorization. The history cursor is deliberately left
// untouched so a re-auth does not trigger a full resync.
func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `INSERT INTO users (id, email, access_token, refresh_token, token_expiry,
			learning_goals, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			needs_reauth = FALSE,
			updated_at = NOW()
		RETURNING id, created_at`

	return s.db.QueryRowContext(ctx, query, u.ID, u.Email, u.AccessToken, u.RefreshToken,
		u.TokenExpiry, pq.Array(u.LearningGoals), u.CreatedAt, u.UpdatedAt).
		Scan(&u.ID, &u.CreatedAt)
}

// ListSyncableUsers returns users eligible for a sync pass: authorized and
// not flagged for re-authorization.
func (s *Store) ListSyncableUsers(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE needs_reauth = FALSE ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateTokens persists a refreshed credential.
func (s *Store) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiry time.Time) error {
	query := `UPDATE users SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, accessToken, refreshToken, expiry)
	return err
}

// UpdateCursor atomically advances the user's history cursor. Called only
// after a listing pass has fully enqueued; partial advancement is forbidden.
func (s *Store) UpdateCursor(ctx context.Context, id uuid.UUID, cursor string) error {
	query := `UPDATE users SET history_cursor = $2, updated_at = NOW() WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, cursor)
	return err
}

// MarkNeedsReauth flags a user whose token refresh was rejected. The sync
// scheduler skips flagged users until they re-authorize.
func (s *Store) MarkNeedsReauth(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET needs_reauth = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// UpdateLearningGoals replaces the user's topic-matching keyword list.
func (s *Store) UpdateLearningGoals(ctx context.Context, id uuid.UUID, goals []string) error {
	query := `UPDATE users SET learning_goals = $2, updated_at = NOW() WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, pq.Array(goals))
	return err
}

// GetSenderStats reads the per-sender aggregate used by the feature
// extractor. Returns nil without error for senders never seen.
func (s *Store) GetSenderStats(ctx context.Context, userID uuid.UUID, sender string) (*domain.SenderStats, error) {
	query := `SELECT user_id, sender_address, email_count, last_email_at, in_contacts, updated_at
		FROM sender_stats WHERE user_id = $1 AND sender_address = $2`

	st := &domain.SenderStats{}
	err := s.db.QueryRowContext(ctx, query, userID, sender).Scan(
		&st.UserID, &st.SenderAddress, &st.EmailCount, &st.LastEmailAt, &st.InContacts, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}
