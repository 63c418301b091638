package links

import (
	"strings"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOK    bool
		wantType  LinkType
		wantVideo string
		wantList  string
		wantURL   string
	}{
		{
			name:      "watch form with tracking params",
			input:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ&utm_source=x&feature=youtu.be",
			wantOK:    true,
			wantType:  TypeVideo,
			wantVideo: "dQw4w9WgXcQ",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name:      "short form",
			input:     "https://youtu.be/dQw4w9WgXcQ",
			wantOK:    true,
			wantType:  TypeVideo,
			wantVideo: "dQw4w9WgXcQ",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name:      "embed form",
			input:     "https://www.youtube.com/embed/dQw4w9WgXcQ",
			wantOK:    true,
			wantType:  TypeVideo,
			wantVideo: "dQw4w9WgXcQ",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name:      "legacy v form",
			input:     "http://youtube.com/v/dQw4w9WgXcQ",
			wantOK:    true,
			wantType:  TypeVideo,
			wantVideo: "dQw4w9WgXcQ",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name:      "no scheme",
			input:     "www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantOK:    true,
			wantType:  TypeVideo,
			wantVideo: "dQw4w9WgXcQ",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name:      "video with playlist",
			input:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLabc123&index=2",
			wantOK:    true,
			wantType:  TypeVideo,
			wantVideo: "dQw4w9WgXcQ",
			wantList:  "PLabc123",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLabc123",
		},
		{
			name:     "playlist only",
			input:    "https://www.youtube.com/playlist?list=PLxxx",
			wantOK:   true,
			wantType: TypePlaylist,
			wantList: "PLxxx",
			wantURL:  "https://www.youtube.com/playlist?list=PLxxx",
		},
		{
			name:   "id too short",
			input:  "https://www.youtube.com/watch?v=short",
			wantOK: false,
		},
		{
			name:   "id too long",
			input:  "https://youtu.be/dQw4w9WgXcQextra",
			wantOK: false,
		},
		{
			name:   "id with illegal chars",
			input:  "https://www.youtube.com/watch?v=dQw4w9WgX!Q",
			wantOK: false,
		},
		{
			name:   "wrong host",
			input:  "https://vimeo.com/watch?v=dQw4w9WgXcQ",
			wantOK: false,
		},
		{
			name:   "channel path ignored",
			input:  "https://www.youtube.com/channel/UCabc",
			wantOK: false,
		},
		{
			name:   "playlist without list param",
			input:  "https://www.youtube.com/playlist",
			wantOK: false,
		},
		{
			name:      "trailing punctuation trimmed",
			input:     "https://youtu.be/dQw4w9WgXcQ.",
			wantOK:    true,
			wantType:  TypeVideo,
			wantVideo: "dQw4w9WgXcQ",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Canonicalize(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Canonicalize(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Type != tt.wantType {
				t.Errorf("type = %q, want %q", got.Type, tt.wantType)
			}
			if got.VideoID != tt.wantVideo {
				t.Errorf("videoID = %q, want %q", got.VideoID, tt.wantVideo)
			}
			if got.PlaylistID != tt.wantList {
				t.Errorf("playlistID = %q, want %q", got.PlaylistID, tt.wantList)
			}
			if got.CanonicalURL != tt.wantURL {
				t.Errorf("canonicalURL = %q, want %q", got.CanonicalURL, tt.wantURL)
			}
		})
	}
}

// Canonicalizing an already-canonical URL must be a fixed point.
func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&utm_source=x",
		"https://youtu.be/abcDEF12345",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLabc",
		"https://www.youtube.com/playlist?list=PLxyz",
	}
	for _, in := range inputs {
		first, ok := Canonicalize(in)
		if !ok {
			t.Fatalf("Canonicalize(%q) rejected", in)
		}
		second, ok := Canonicalize(first.CanonicalURL)
		if !ok {
			t.Fatalf("re-canonicalize of %q rejected", first.CanonicalURL)
		}
		if second != first {
			t.Errorf("not idempotent: %+v != %+v", second, first)
		}
	}
}

// The canonical query string must contain v and optionally list, nothing else.
func TestCanonicalizeStripsTrackingParams(t *testing.T) {
	got, ok := Canonicalize("https://www.youtube.com/watch?v=dQw4w9WgXcQ&utm_source=newsletter&utm_medium=email&t=42s&ab_channel=foo")
	if !ok {
		t.Fatal("rejected valid URL")
	}
	if strings.Contains(got.CanonicalURL, "utm") || strings.Contains(got.CanonicalURL, "t=42") || strings.Contains(got.CanonicalURL, "ab_channel") {
		t.Errorf("tracking params survived: %s", got.CanonicalURL)
	}
	if got.CanonicalURL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("canonicalURL = %s", got.CanonicalURL)
	}
}

func TestExtract(t *testing.T) {
	t.Run("dedupes by video id across URL forms", func(t *testing.T) {
		text := `Check this out: https://www.youtube.com/watch?v=dQw4w9WgXcQ
also here https://youtu.be/dQw4w9WgXcQ and a second one
https://www.youtube.com/watch?v=abcDEF12345&utm_source=x`
		got := Extract(text)
		if len(got) != 2 {
			t.Fatalf("got %d links, want 2: %+v", len(got), got)
		}
		if got[0].VideoID != "dQw4w9WgXcQ" || got[1].VideoID != "abcDEF12345" {
			t.Errorf("wrong ids: %+v", got)
		}
	})

	t.Run("mixed video and playlist", func(t *testing.T) {
		text := "watch https://youtu.be/dQw4w9WgXcQ then the series https://www.youtube.com/playlist?list=PLseries1"
		got := Extract(text)
		if len(got) != 2 {
			t.Fatalf("got %d links, want 2", len(got))
		}
		if got[0].Type != TypeVideo || got[1].Type != TypePlaylist {
			t.Errorf("wrong types: %+v", got)
		}
	})

	t.Run("invalid ids skipped", func(t *testing.T) {
		text := "bad https://www.youtube.com/watch?v=short good https://youtu.be/dQw4w9WgXcQ"
		got := Extract(text)
		if len(got) != 1 || got[0].VideoID != "dQw4w9WgXcQ" {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("no links", func(t *testing.T) {
		if got := Extract("nothing to see here, just plain text"); got != nil {
			t.Fatalf("got %+v, want nil", got)
		}
	})
}
