package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an authorized mailbox owner. Created on first successful
// authorization; the history cursor is advanced only by the inbox
// synchronizer.
type User struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	AccessToken   string    `json:"-" db:"access_token"`
	RefreshToken  string    `json:"-" db:"refresh_token"`
	TokenExpiry   time.Time `json:"-" db:"token_expiry"`
	HistoryCursor string    `json:"history_cursor" db:"history_cursor"`
	NeedsReauth   bool      `json:"needs_reauth" db:"needs_reauth"`

	// LearningGoals is the ordered keyword list used for topic matching.
	LearningGoals []string `json:"learning_goals" db:"learning_goals"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Preferences is the typed view of the users.preferences JSON column.
// Unknown fields on the wire are preserved by the store but carry no meaning.
type Preferences struct {
	LearningGoals []string `json:"learning_goals"`
	DigestEnabled bool     `json:"digest_enabled"`
}

// SenderStats is the per-(user, sender) aggregate maintained by the email
// processor. EmailCount is monotonic non-decreasing; LastEmailAt is the max
// of all contributing emails.
type SenderStats struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	SenderAddress string    `json:"sender_address" db:"sender_address"`
	EmailCount    int       `json:"email_count" db:"email_count"`
	LastEmailAt   time.Time `json:"last_email_at" db:"last_email_at"`
	InContacts    bool      `json:"in_contacts" db:"in_contacts"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
