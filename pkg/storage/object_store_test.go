package storage

import "testing"

func TestContentTypeForFilename(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"clip.mp4", "video/mp4"},
		{"CLIP.MOV", "video/quicktime"},
		{"take-2.webm", "video/webm"},
		{"raw.mkv", "video/x-matroska"},
		{"thumb.png", "image/png"},
		{"no-extension", "application/octet-stream"},
		{"", "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := ContentTypeForFilename(tc.name); got != tc.want {
			t.Errorf("ContentTypeForFilename(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}
