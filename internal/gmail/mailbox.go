// Package gmail wraps the Gmail API behind a narrow Mailbox interface and
// implements the incremental inbox synchronizer on top of it.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ignite/tubefeed/internal/domain"
)

// Mailbox is the slice of the inbox API the pipeline uses. The production
// implementation talks to Gmail; tests substitute a fake.
type Mailbox interface {
	// Profile returns the mailbox address and its current history cursor.
	Profile(ctx context.Context) (email string, historyID uint64, err error)
	// ListHistory pages message ids added since the cursor. A stale cursor
	// returns ErrCursorExpired.
	ListHistory(ctx context.Context, cursor string, pageToken string) (messageIDs []string, nextPage string, newCursor uint64, err error)
	// ListMessages pages message ids matching a query, newest first.
	ListMessages(ctx context.Context, query string, maxResults int64, pageToken string) (messageIDs []string, nextPage string, err error)
	// GetMessage fetches one full message.
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	// ThreadSize returns the number of messages in a thread.
	ThreadSize(ctx context.Context, threadID string) (int, error)
}

// ErrCursorExpired signals that the stored history cursor is too old for an
// incremental listing and a bounded initial sync is needed instead.
var ErrCursorExpired = errors.New("gmail: history cursor expired")

// ErrAuthorizationRevoked signals that the user's refresh token was
// rejected and re-authorization is required.
var ErrAuthorizationRevoked = errors.New("gmail: authorization revoked")

// Message is the decoded view of one inbox message.
type Message struct {
	ID            string
	ThreadID      string
	SenderAddress string
	SenderName    string
	Subject       string
	ReceivedAt    time.Time
	Snippet       string
	Labels        []string
	InReplyTo     string
	Body          string
}

// OAuthConfig builds the oauth2 config for the read-only Gmail scope.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gm.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// GoogleMailbox implements Mailbox over the Gmail API.
type GoogleMailbox struct {
	service *gm.Service
}

// NewGoogleMailbox creates a mailbox for one user's credential. Token
// refresh happens transparently inside the oauth2 transport; a rejected
// refresh surfaces from the first API call as ErrAuthorizationRevoked.
func NewGoogleMailbox(ctx context.Context, cfg *oauth2.Config, user *domain.User) (*GoogleMailbox, error) {
	token := &oauth2.Token{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		Expiry:       user.TokenExpiry,
	}
	service, err := gm.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &GoogleMailbox{service: service}, nil
}

// Profile returns the mailbox address and current history id.
func (m *GoogleMailbox) Profile(ctx context.Context) (string, uint64, error) {
	profile, err := m.service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", 0, classifyErr(err)
	}
	return profile.EmailAddress, profile.HistoryId, nil
}

// ListHistory pages newly added message ids since the cursor.
func (m *GoogleMailbox) ListHistory(ctx context.Context, cursor string, pageToken string) ([]string, string, uint64, error) {
	var startID uint64
	if _, err := fmt.Sscanf(cursor, "%d", &startID); err != nil {
		return nil, "", 0, fmt.Errorf("malformed history cursor %q: %w", cursor, err)
	}

	call := m.service.Users.History.List("me").
		StartHistoryId(startID).
		HistoryTypes("messageAdded")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		if apiCode(err) == 404 {
			// History.List 404s when the cursor has aged out of Gmail's
			// retention; the caller falls back to a bounded initial sync.
			return nil, "", 0, fmt.Errorf("%w: %v", ErrCursorExpired, err)
		}
		return nil, "", 0, classifyErr(err)
	}

	var ids []string
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil {
				ids = append(ids, added.Message.Id)
			}
		}
	}
	return ids, resp.NextPageToken, resp.HistoryId, nil
}

// ListMessages pages message ids matching a query.
func (m *GoogleMailbox) ListMessages(ctx context.Context, query string, maxResults int64, pageToken string) ([]string, string, error) {
	call := m.service.Users.Messages.List("me")
	if query != "" {
		call = call.Q(query)
	}
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", classifyErr(err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, resp.NextPageToken, nil
}

// GetMessage fetches one message in full and decodes its part tree.
func (m *GoogleMailbox) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	msg, err := m.service.Users.Messages.Get("me", messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyErr(err)
	}
	return parseMessage(msg), nil
}

// ThreadSize returns the number of messages in a thread. The reply count of
// a message is the thread size minus one.
func (m *GoogleMailbox) ThreadSize(ctx context.Context, threadID string) (int, error) {
	thread, err := m.service.Users.Threads.Get("me", threadID).
		Format("minimal").
		Context(ctx).
		Do()
	if err != nil {
		return 0, classifyErr(err)
	}
	return len(thread.Messages), nil
}

// classifyErr maps upstream failures onto the pipeline's error surface.
func classifyErr(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return ErrAuthorizationRevoked
		}
	}
	if strings.Contains(err.Error(), "invalid_grant") {
		return ErrAuthorizationRevoked
	}
	// Everything else passes through untouched so callers can inspect the
	// googleapi.Error; a 404 from Messages.Get means the message itself is
	// gone, not that the cursor expired.
	return err
}
