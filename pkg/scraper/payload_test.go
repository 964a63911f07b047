package scraper

import (
	"testing"

	"clipclaim/pkg/domain"
)

func TestExtractSnapshotIDProbesShapes(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]any
		want string
	}{
		{"flat snapshot_id", map[string]any{"snapshot_id": "s_abc"}, "s_abc"},
		{"dashed key", map[string]any{"snapshot-id": "s_dash"}, "s_dash"},
		{"camel case", map[string]any{"snapshotId": "s_camel"}, "s_camel"},
		{"request id fallback", map[string]any{"request_id": "s_req"}, "s_req"},
		{"bare id", map[string]any{"id": "s_bare"}, "s_bare"},
		{"nested under data", map[string]any{"data": map[string]any{"snapshot_id": "s_data"}}, "s_data"},
		{"nested under response", map[string]any{"response": map[string]any{"id": "s_resp"}}, "s_resp"},
		{"numeric id", map[string]any{"id": float64(123456)}, "123456"},
		{"no match", map[string]any{"unrelated": "x"}, ""},
		{
			"ordered precedence",
			map[string]any{"id": "weak", "snapshot_id": "strong"},
			"strong",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractSnapshotID(tc.doc); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestExtractBioPlatformShapes(t *testing.T) {
	cases := []struct {
		name     string
		platform domain.Platform
		payload  string
		want     string
	}{
		{"tiktok signature", domain.PlatformTikTok, `{"signature":"Code ABC123 here"}`, "Code ABC123 here"},
		{"instagram biography", domain.PlatformInstagram, `{"biography":"my bio"}`, "my bio"},
		{"youtube description", domain.PlatformYouTube, `{"description":"channel about text"}`, "channel about text"},
		{"dataset row array", domain.PlatformTikTok, `[{"signature":"row bio"}]`, "row bio"},
		{"nested user object", domain.PlatformInstagram, `{"user":{"biography":"nested bio"}}`, "nested bio"},
		{"generic fallback key", domain.PlatformX, `{"about":"generic"}`, "generic"},
		{"no bio present", domain.PlatformTikTok, `{"follower_count":10}`, ""},
		{"not json", domain.PlatformTikTok, `<html>`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractBio(tc.platform, []byte(tc.payload)); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestContainsCode(t *testing.T) {
	if !ContainsCode("Welcome! Code ABC123 here", "ABC123") {
		t.Fatal("exact code should match")
	}
	if !ContainsCode("welcome! code abc123 here", "ABC123") {
		t.Fatal("match must be case-insensitive")
	}
	if ContainsCode("no code here", "ABC123") {
		t.Fatal("absent code must not match")
	}
	if ContainsCode("anything", "") {
		t.Fatal("empty code must never match")
	}
}

func TestProfileTargetURL(t *testing.T) {
	got := ProfileTargetURL(domain.PlatformYouTube, "https://www.youtube.com/@channel/")
	if got != "https://www.youtube.com/@channel/about" {
		t.Fatalf("youtube target should gain /about, got %q", got)
	}
	got = ProfileTargetURL(domain.PlatformYouTube, "https://www.youtube.com/@channel/about")
	if got != "https://www.youtube.com/@channel/about" {
		t.Fatalf("suffix must not be doubled, got %q", got)
	}
	got = ProfileTargetURL(domain.PlatformTikTok, "https://www.tiktok.com/@maker/")
	if got != "https://www.tiktok.com/@maker" {
		t.Fatalf("non-youtube URL should only be trimmed, got %q", got)
	}
}
