package domain

import "time"

type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformX         Platform = "x"
)

// IsValidPlatform reports whether v names a supported source platform.
// "twitter" is accepted as a legacy alias for "x".
func IsValidPlatform(v string) bool {
	switch Platform(v) {
	case PlatformTikTok, PlatformInstagram, PlatformYouTube, PlatformX:
		return true
	}
	return v == "twitter"
}

// NormalizePlatform folds legacy aliases into the canonical platform name.
func NormalizePlatform(v string) Platform {
	if v == "twitter" {
		return PlatformX
	}
	return Platform(v)
}

type OwnershipStatus string

const (
	OwnershipPending     OwnershipStatus = "pending"
	OwnershipVerified    OwnershipStatus = "verified"
	OwnershipFailed      OwnershipStatus = "failed"
	OwnershipContested   OwnershipStatus = "contested"
	OwnershipNotRequired OwnershipStatus = "not_required"
)

type ClaimStatus string

const (
	ClaimUnclaimed ClaimStatus = "unclaimed"
	ClaimPending   ClaimStatus = "pending"
	ClaimClaimed   ClaimStatus = "claimed"
	ClaimContested ClaimStatus = "contested"
)

type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "PENDING"
	WebhookCompleted WebhookStatus = "COMPLETED"
	WebhookFailed    WebhookStatus = "FAILED"
)

type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationPending    VerificationStatus = "PENDING"
	VerificationVerified   VerificationStatus = "VERIFIED"
	VerificationFailed     VerificationStatus = "FAILED"
)

// RawVideoAsset is one uploaded video file tied to a user and a claimed source URL.
type RawVideoAsset struct {
	ID                   string          `json:"id"`
	OwnerUserID          string          `json:"ownerUserId"`
	Platform             Platform        `json:"platform"`
	SourceURL            string          `json:"sourceUrl"`
	Fingerprint          string          `json:"fingerprint"`
	StorageKey           string          `json:"-"`
	SizeBytes            int64           `json:"sizeBytes"`
	OwnershipStatus      OwnershipStatus `json:"ownershipStatus"`
	OwnerSocialAccountID *string         `json:"ownerSocialAccountId,omitempty"`
	OwnershipReason      string          `json:"ownershipReason,omitempty"`
	VerifiedAt           *time.Time      `json:"verifiedAt,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// OwnershipClaim is the registry row for one fingerprint: who currently owns
// the underlying video and how often ownership of it has been disputed.
type OwnershipClaim struct {
	Fingerprint     string      `json:"fingerprint"`
	Platform        Platform    `json:"platform"`
	AssetID         string      `json:"assetId"`
	UserID          string      `json:"userId"`
	SocialAccountID string      `json:"socialAccountId"`
	Status          ClaimStatus `json:"status"`
	ContestedCount  int         `json:"contestedCount"`
	LastContestedAt *time.Time  `json:"lastContestedAt,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// SocialAccount is a user's claimed identity on an external platform.
type SocialAccount struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"userId"`
	Platform             Platform           `json:"platform"`
	ProfileURL           string             `json:"profileUrl"`
	Username             string             `json:"username"`
	VerificationCode     string             `json:"verificationCode,omitempty"`
	SnapshotID           string             `json:"snapshotId,omitempty"`
	WebhookStatus        WebhookStatus      `json:"webhookStatus,omitempty"`
	VerificationStatus   VerificationStatus `json:"verificationStatus"`
	VerificationAttempts int                `json:"verificationAttempts"`
	ProfileData          []byte             `json:"-"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// ContestSubmission carries only the ownership fields this service owns; the
// rest of the submission lives with the contest system.
type ContestSubmission struct {
	ID                      string          `json:"id"`
	ContestID               string          `json:"contestId"`
	UserID                  string          `json:"userId"`
	AssetID                 string          `json:"assetId,omitempty"`
	Platform                Platform        `json:"platform"`
	SourceURL               string          `json:"sourceUrl"`
	MP4OwnershipStatus      OwnershipStatus `json:"mp4OwnershipStatus"`
	MP4OwnerSocialAccountID *string         `json:"mp4OwnerSocialAccountId,omitempty"`
	MP4OwnershipReason      string          `json:"mp4OwnershipReason,omitempty"`
	IsDisqualified          bool            `json:"isDisqualified"`
	OwnershipResolvedAt     *time.Time      `json:"ownershipResolvedAt,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}
