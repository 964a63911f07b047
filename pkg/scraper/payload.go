package scraper

import (
	"encoding/json"
	"strconv"
	"strings"

	"clipclaim/pkg/domain"
)

// The provider does not commit to a payload schema: the snapshot id has been
// observed under several key names and nesting levels depending on the call
// and provider version. Extraction is an ordered list of structural probes
// over the generic document; the first hit wins.
var snapshotIDProbes = [][]string{
	{"snapshot_id"},
	{"snapshot-id"},
	{"snapshotId"},
	{"request_id"},
	{"job_id"},
	{"id"},
	{"data", "snapshot_id"},
	{"data", "id"},
	{"response", "snapshot_id"},
	{"response", "id"},
	{"result", "snapshot_id"},
}

// ExtractSnapshotID probes a provider document for the job correlation id.
// Returns "" when no probe matches.
func ExtractSnapshotID(doc map[string]any) string {
	for _, probe := range snapshotIDProbes {
		if v, ok := probeString(doc, probe...); ok && v != "" {
			return v
		}
	}
	return ""
}

// Bio key candidates, most platform-specific first. The generic tail covers
// payload shapes the provider has not been seen using yet.
var bioProbesByPlatform = map[domain.Platform][]string{
	domain.PlatformTikTok:    {"signature", "bio", "description"},
	domain.PlatformInstagram: {"biography", "bio", "description"},
	domain.PlatformYouTube:   {"description", "about", "bio"},
	domain.PlatformX:         {"description", "bio", "about"},
}

var genericBioProbes = []string{"biography", "bio", "description", "about", "signature"}

// Containers the profile object has been observed nested under.
var bioContainers = []string{"user", "profile", "data", "author", "account"}

// ExtractBio pulls the profile bio/description text out of a provider result
// payload. The payload may be a single object or an array of dataset rows;
// the first row wins. Returns "" when no bio field is present.
func ExtractBio(platform domain.Platform, payload []byte) string {
	doc := firstObject(payload)
	if doc == nil {
		return ""
	}
	keys := append(append([]string{}, bioProbesByPlatform[platform]...), genericBioProbes...)
	for _, key := range keys {
		if v, ok := probeString(doc, key); ok && v != "" {
			return v
		}
	}
	for _, container := range bioContainers {
		nested, ok := doc[container].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			if v, ok := probeString(nested, key); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

// ContainsCode reports whether the verification code appears in the bio
// text, case-insensitively.
func ContainsCode(bio, code string) bool {
	if strings.TrimSpace(code) == "" {
		return false
	}
	return strings.Contains(strings.ToLower(bio), strings.ToLower(code))
}

func firstObject(payload []byte) map[string]any {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil
	}
	switch v := doc.(type) {
	case map[string]any:
		return v
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				return obj
			}
		}
	}
	return nil
}

func probeString(doc map[string]any, path ...string) (string, bool) {
	current := doc
	for i, key := range path {
		value, ok := current[key]
		if !ok {
			return "", false
		}
		if i == len(path)-1 {
			switch v := value.(type) {
			case string:
				return strings.TrimSpace(v), true
			case json.Number:
				return v.String(), true
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64), true
			}
			return "", false
		}
		next, ok := value.(map[string]any)
		if !ok {
			return "", false
		}
		current = next
	}
	return "", false
}
