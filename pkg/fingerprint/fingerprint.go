// Package fingerprint canonicalizes platform video URLs into stable
// content-identity keys so that every claim over "the same video" lands on
// the same registry row regardless of how the link was shared.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"clipclaim/pkg/domain"
)

// Tracking and share parameters that never influence which video a URL
// points at. Anything matching these (or any utm_* key) is dropped before
// hashing the fallback form.
var droppedParams = map[string]struct{}{
	"fbclid":           {},
	"gclid":            {},
	"igsh":             {},
	"igshid":           {},
	"si":               {},
	"feature":          {},
	"ref":              {},
	"ref_src":          {},
	"ref_url":          {},
	"share_id":         {},
	"share_app_id":     {},
	"share_link_id":    {},
	"sender_device":    {},
	"is_from_webapp":   {},
	"is_copy_url":      {},
	"s":                {},
	"t":                {},
	"app":              {},
	"_r":               {},
	"_t":               {},
	"source":           {},
	"utm_source":       {},
	"utm_medium":       {},
	"utm_campaign":     {},
	"utm_term":         {},
	"utm_content":      {},
	"checksum":         {},
	"sec_user_id":      {},
	"share_item_id":    {},
	"timestamp":        {},
	"tt_from":          {},
	"u_code":           {},
	"user_id":          {},
	"preview_pb":       {},
	"language":         {},
	"ugbiz_name":       {},
	"social_share_type": {},
}

// Fingerprint derives a stable content-identity key for a platform URL.
// When a platform-specific video id can be extracted, the key is
// "<platform>:<id>" and exact is true. Otherwise the key is a hash of the
// normalized URL and exact is false; callers may treat such low-confidence
// keys more conservatively during claim arbitration.
func Fingerprint(platform domain.Platform, rawURL string) (key string, exact bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return hashKey(platform, strings.ToLower(strings.TrimSpace(rawURL))), false
	}
	normalize(u)

	if id := contentID(platform, u); id != "" {
		return string(platform) + ":" + id, true
	}
	return hashKey(platform, canonicalString(u)), false
}

// HandleFromURL extracts the account handle a profile or video URL belongs
// to, lowercased without decoration. Returns "" when the URL carries no
// recognizable handle for the platform.
func HandleFromURL(platform domain.Platform, rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	normalize(u)
	segs := pathSegments(u)
	if len(segs) == 0 {
		return ""
	}
	switch platform {
	case domain.PlatformTikTok:
		if strings.HasPrefix(segs[0], "@") {
			return strings.ToLower(strings.TrimPrefix(segs[0], "@"))
		}
	case domain.PlatformYouTube:
		if strings.HasPrefix(segs[0], "@") {
			return strings.ToLower(strings.TrimPrefix(segs[0], "@"))
		}
		if (segs[0] == "c" || segs[0] == "user" || segs[0] == "channel") && len(segs) > 1 {
			return strings.ToLower(segs[1])
		}
	case domain.PlatformInstagram, domain.PlatformX:
		switch segs[0] {
		case "p", "reel", "reels", "tv", "stories", "i", "intent", "home", "explore":
			return ""
		}
		return strings.ToLower(strings.TrimPrefix(segs[0], "@"))
	}
	return ""
}

func contentID(platform domain.Platform, u *url.URL) string {
	segs := pathSegments(u)
	switch platform {
	case domain.PlatformYouTube:
		if u.Host == "youtu.be" && len(segs) > 0 {
			return segs[0]
		}
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		if len(segs) >= 2 && (segs[0] == "shorts" || segs[0] == "embed" || segs[0] == "live" || segs[0] == "v") {
			return segs[1]
		}
	case domain.PlatformTikTok:
		// Long form only: /@user/video/<id>. Shortened vm.tiktok.com links
		// redirect and cannot be resolved without a network round trip, so
		// they fall through to the hashed low-confidence key.
		for i := 0; i+1 < len(segs); i++ {
			if (segs[i] == "video" || segs[i] == "photo") && isDigits(segs[i+1]) {
				return segs[i+1]
			}
		}
	case domain.PlatformInstagram:
		for i := 0; i+1 < len(segs); i++ {
			if segs[i] == "p" || segs[i] == "reel" || segs[i] == "reels" || segs[i] == "tv" {
				return segs[i+1]
			}
		}
	case domain.PlatformX:
		for i := 0; i+1 < len(segs); i++ {
			if segs[i] == "status" && isDigits(segs[i+1]) {
				return segs[i+1]
			}
		}
	}
	return ""
}

func normalize(u *url.URL) {
	u.Scheme = "https"
	u.Fragment = ""
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	if host == "twitter.com" {
		host = "x.com"
	}
	u.Host = host

	q := u.Query()
	for name := range q {
		lower := strings.ToLower(name)
		if _, drop := droppedParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			q.Del(name)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimRight(u.Path, "/")
}

func canonicalString(u *url.URL) string {
	s := u.Host + u.Path
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	return s
}

func hashKey(platform domain.Platform, canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return string(platform) + ":sha256:" + hex.EncodeToString(sum[:])
}

func pathSegments(u *url.URL) []string {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	segs := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segs = append(segs, part)
		}
	}
	return segs
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
