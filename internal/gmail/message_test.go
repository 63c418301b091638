package gmail

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestParseMessage(t *testing.T) {
	msg := &gm.Message{
		Id:           "msg-1",
		ThreadId:     "thr-1",
		Snippet:      "Check out this video",
		LabelIds:     []string{"INBOX", "UNREAD"},
		InternalDate: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC).UnixMilli(),
		Payload: &gm.MessagePart{
			MimeType: "text/plain",
			Headers: []*gm.MessagePartHeader{
				{Name: "From", Value: "Alice Doe <Alice@Example.com>"},
				{Name: "Subject", Value: "Weekly digest"},
				{Name: "In-Reply-To", Value: "<parent@example.com>"},
			},
			Body: &gm.MessagePartBody{Data: b64("https://youtu.be/dQw4w9WgXcQ")},
		},
	}

	got := parseMessage(msg)
	if got.SenderAddress != "alice@example.com" {
		t.Errorf("sender = %q, want lowercased address", got.SenderAddress)
	}
	if got.SenderName != "Alice Doe" {
		t.Errorf("senderName = %q", got.SenderName)
	}
	if got.Subject != "Weekly digest" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.InReplyTo == "" {
		t.Error("In-Reply-To not captured")
	}
	if !strings.Contains(got.Body, "youtu.be/dQw4w9WgXcQ") {
		t.Errorf("body = %q, want decoded link", got.Body)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("receivedAt not set")
	}
}

func TestDecodePartsMultipart(t *testing.T) {
	payload := &gm.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gm.MessagePart{
			{
				MimeType: "text/plain",
				Body:     &gm.MessagePartBody{Data: b64("plain text part")},
			},
			{
				MimeType: "text/html",
				Body:     &gm.MessagePartBody{Data: b64("<a href=\"https://youtu.be/dQw4w9WgXcQ\">link</a>")},
			},
			{
				MimeType: "image/png",
				Body:     &gm.MessagePartBody{Data: b64("binarybytes")},
			},
		},
	}

	body := decodeParts(payload)
	if !strings.Contains(body, "plain text part") {
		t.Error("plain part missing")
	}
	if !strings.Contains(body, "youtu.be/dQw4w9WgXcQ") {
		t.Error("html part missing")
	}
	if strings.Contains(body, "binarybytes") {
		t.Error("non-text part decoded")
	}
}

// Malformed parts are skipped, never fatal.
func TestDecodePartsTolerant(t *testing.T) {
	payload := &gm.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gm.MessagePart{
			{
				MimeType: "text/plain",
				Body:     &gm.MessagePartBody{Data: "!!!not-base64!!!"},
			},
			nil,
			{
				MimeType: "text/plain",
				Body:     &gm.MessagePartBody{Data: b64("survivor")},
			},
		},
	}
	body := decodeParts(payload)
	if !strings.Contains(body, "survivor") {
		t.Errorf("body = %q, want good part decoded despite bad sibling", body)
	}
}

func TestParseSenderMalformed(t *testing.T) {
	name, addr := parseSender("not a real header")
	if name != "" || addr != "not a real header" {
		t.Errorf("got (%q, %q), want raw fallback", name, addr)
	}
}

// Only History.List maps a 404 onto the expired-cursor sentinel; a 404 from
// a message or thread fetch means that resource is gone and must surface as
// the raw API error so callers can drop the work.
func TestClassifyErrKeepsNotFound(t *testing.T) {
	got := classifyErr(&googleapi.Error{Code: 404})
	var apiErr *googleapi.Error
	if !errors.As(got, &apiErr) || apiErr.Code != 404 {
		t.Fatalf("classifyErr = %v, want the 404 passed through", got)
	}
	if errors.Is(got, ErrCursorExpired) {
		t.Error("a fetch 404 must not read as an expired cursor")
	}
}

func TestClassifyErrAuthRevoked(t *testing.T) {
	got := classifyErr(&oauth2.RetrieveError{ErrorCode: "invalid_grant"})
	if !errors.Is(got, ErrAuthorizationRevoked) {
		t.Fatalf("classifyErr = %v, want ErrAuthorizationRevoked", got)
	}
}
