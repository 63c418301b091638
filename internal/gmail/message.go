package gmail

import (
	"encoding/base64"
	"errors"
	"net/mail"
	"strings"
	"time"

	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

func apiCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// parseMessage maps a raw API message onto the decoded Message, walking the
// part tree for body text and pulling the headers the pipeline cares about.
func parseMessage(msg *gm.Message) *Message {
	out := &Message{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Snippet:    msg.Snippet,
		Labels:     msg.LabelIds,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				out.SenderName, out.SenderAddress = parseSender(h.Value)
			case "subject":
				out.Subject = h.Value
			case "in-reply-to":
				out.InReplyTo = h.Value
			}
		}
		out.Body = decodeParts(msg.Payload)
	}
	return out
}

// parseSender splits a From header into display name and address. Malformed
// headers degrade to using the raw value as the address.
func parseSender(from string) (name, address string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", strings.TrimSpace(from)
	}
	return addr.Name, strings.ToLower(addr.Address)
}

// decodeParts walks the message part tree and concatenates every inline
// text body it can decode. Malformed parts are skipped, not fatal: a
// half-decodable newsletter still yields its links.
func decodeParts(part *gm.MessagePart) string {
	var sb strings.Builder
	walkParts(part, &sb)
	return sb.String()
}

func walkParts(part *gm.MessagePart, sb *strings.Builder) {
	if part == nil {
		return
	}
	if part.Body != nil && part.Body.Data != "" && isTextPart(part.MimeType) {
		data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "="))
		if err == nil {
			sb.Write(data)
			sb.WriteByte('\n')
		}
	}
	for _, child := range part.Parts {
		walkParts(child, sb)
	}
}

func isTextPart(mimeType string) bool {
	return mimeType == "" ||
		strings.HasPrefix(mimeType, "text/") ||
		strings.HasPrefix(mimeType, "multipart/")
}
