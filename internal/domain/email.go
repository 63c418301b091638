package domain

import (
	"time"

	"github.com/google/uuid"
)

// SnippetMaxLen is the hard cap on the stored email preview snippet.
const SnippetMaxLen = 200

// Email is one processed inbox message. Identity is (user, message id);
// rows are never mutated after creation, so a redelivered process job is a
// no-op once the row exists.
type Email struct {
	ID            uuid.UUID `json:"id" db:"id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	MessageID     string    `json:"message_id" db:"message_id"`
	ThreadID      string    `json:"thread_id" db:"thread_id"`
	SenderAddress string    `json:"sender_address" db:"sender_address"`
	SenderName    string    `json:"sender_name" db:"sender_name"`
	Subject       string    `json:"subject" db:"subject"`
	ReceivedAt    time.Time `json:"received_at" db:"received_at"`
	Snippet       string    `json:"snippet" db:"snippet"`
	Labels        []string  `json:"labels" db:"labels"`

	// ThreadReplyCount is derived from the actual thread listing
	// (messages in thread minus one), not from label counts.
	ThreadReplyCount int  `json:"thread_reply_count" db:"thread_reply_count"`
	IsThreadReply    bool `json:"is_thread_reply" db:"is_thread_reply"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TruncateSnippet enforces SnippetMaxLen without splitting a UTF-8 rune.
func TruncateSnippet(s string) string {
	if len(s) <= SnippetMaxLen {
		return s
	}
	runes := []rune(s)
	out := make([]rune, 0, SnippetMaxLen)
	n := 0
	for _, r := range runes {
		rl := len(string(r))
		if n+rl > SnippetMaxLen {
			break
		}
		out = append(out, r)
		n += rl
	}
	return string(out)
}

// Link is one canonicalized video reference extracted from an email.
// VideoID is empty for playlist-only links.
type Link struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	EmailID      uuid.UUID `json:"email_id" db:"email_id"`
	VideoID      string    `json:"video_id" db:"video_id"`
	PlaylistID   string    `json:"playlist_id" db:"playlist_id"`
	CanonicalURL string    `json:"canonical_url" db:"canonical_url"`

	// IsDuplicate is true iff the same (user, video id) pair already
	// existed before this row was inserted.
	IsDuplicate bool      `json:"is_duplicate" db:"is_duplicate"`
	ExtractedAt time.Time `json:"extracted_at" db:"extracted_at"`
}
