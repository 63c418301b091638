// Package links extracts YouTube references from email text and normalizes
// them into a single canonical form so the rest of the pipeline can key on
// video id alone.
package links

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkType distinguishes direct video references from playlist-only ones.
type LinkType string

const (
	TypeVideo    LinkType = "video"
	TypePlaylist LinkType = "playlist"
)

// Canonical is a normalized YouTube reference. VideoID is empty for
// playlist-only links; PlaylistID is empty unless the source URL carried one.
type Canonical struct {
	Type         LinkType
	VideoID      string
	PlaylistID   string
	CanonicalURL string
}

// videoIDRe is the exact shape of a YouTube video id.
var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// urlRe finds candidate YouTube URLs in free text. Bare-host forms without a
// scheme are accepted; trailing punctuation is trimmed afterwards.
var urlRe = regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:youtube\.com|youtu\.be)/[^\s<>"')\]]+`)

// Canonicalize normalizes a single URL into its canonical form.
// Recognized shapes:
//
//	youtube.com/watch?v=ID    youtu.be/ID    youtube.com/embed/ID
//	youtube.com/v/ID          youtube.com/playlist?list=PID
//
// All query parameters other than v and list are dropped. Returns false when
// the URL is not a recognized shape or the video id is malformed.
func Canonicalize(raw string) (Canonical, bool) {
	raw = strings.TrimRight(raw, ".,;:!?")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Canonical{}, false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	q := u.Query()

	var videoID, playlistID string
	switch host {
	case "youtu.be":
		videoID = strings.Trim(u.Path, "/")
		// Short links carry the playlist in the query, same as long form.
		playlistID = q.Get("list")
	case "youtube.com":
		path := u.Path
		switch {
		case path == "/watch":
			videoID = q.Get("v")
			playlistID = q.Get("list")
		case strings.HasPrefix(path, "/embed/"):
			videoID = strings.TrimPrefix(path, "/embed/")
		case strings.HasPrefix(path, "/v/"):
			videoID = strings.TrimPrefix(path, "/v/")
		case path == "/playlist":
			playlistID = q.Get("list")
			if playlistID == "" {
				return Canonical{}, false
			}
			return Canonical{
				Type:         TypePlaylist,
				PlaylistID:   playlistID,
				CanonicalURL: "https://www.youtube.com/playlist?list=" + url.QueryEscape(playlistID),
			}, true
		default:
			return Canonical{}, false
		}
	default:
		return Canonical{}, false
	}

	videoID = strings.Trim(videoID, "/")
	if !videoIDRe.MatchString(videoID) {
		return Canonical{}, false
	}

	canonical := "https://www.youtube.com/watch?v=" + videoID
	if playlistID != "" {
		canonical += "&list=" + url.QueryEscape(playlistID)
	}
	return Canonical{
		Type:         TypeVideo,
		VideoID:      videoID,
		PlaylistID:   playlistID,
		CanonicalURL: canonical,
	}, true
}

// Extract scans text for YouTube URLs and returns canonicalized references,
// deduplicated by video id (playlist-only links dedupe by playlist id).
// Order follows first appearance in the text.
func Extract(text string) []Canonical {
	matches := urlRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var out []Canonical
	seenVideo := make(map[string]bool)
	seenPlaylist := make(map[string]bool)
	for _, m := range matches {
		c, ok := Canonicalize(m)
		if !ok {
			continue
		}
		switch c.Type {
		case TypeVideo:
			if seenVideo[c.VideoID] {
				continue
			}
			seenVideo[c.VideoID] = true
		case TypePlaylist:
			if seenPlaylist[c.PlaylistID] {
				continue
			}
			seenPlaylist[c.PlaylistID] = true
		}
		out = append(out, c)
	}
	return out
}
