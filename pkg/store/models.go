package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type SocialAccountModel struct {
	ID                   string `gorm:"primaryKey"`
	UserID               string `gorm:"not null;index"`
	Platform             string `gorm:"not null"`
	ProfileURL           string `gorm:"not null"`
	Username             string `gorm:"not null;index"`
	// Pointer so accounts without an issued code store NULL; a unique index
	// over empty strings would reject every account linked after the first.
	VerificationCode     *string `gorm:"uniqueIndex"`
	SnapshotID           string `gorm:"index"`
	WebhookStatus        string
	VerificationStatus   string `gorm:"not null;index"`
	VerificationAttempts int    `gorm:"not null;default:0"`
	ProfileData          datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt            time.Time      `gorm:"not null"`
	UpdatedAt            time.Time      `gorm:"not null"`
}

type RawVideoAssetModel struct {
	ID                   string `gorm:"primaryKey"`
	OwnerUserID          string `gorm:"not null;index"`
	Platform             string `gorm:"not null"`
	SourceURL            string `gorm:"not null"`
	Fingerprint          string `gorm:"not null;index"`
	StorageKey           string
	SizeBytes            int64   `gorm:"not null"`
	OwnershipStatus      string  `gorm:"not null;index"`
	OwnerSocialAccountID *string `gorm:"index"`
	OwnershipReason      string
	VerifiedAt           *time.Time
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

type OwnershipClaimModel struct {
	Fingerprint     string `gorm:"primaryKey"`
	Platform        string `gorm:"not null"`
	AssetID         string
	UserID          string
	SocialAccountID string
	Status          string `gorm:"not null"`
	ContestedCount  int    `gorm:"not null;default:0"`
	LastContestedAt *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type ContestSubmissionModel struct {
	ID                      string `gorm:"primaryKey"`
	ContestID               string `gorm:"not null;index"`
	UserID                  string `gorm:"not null;index"`
	AssetID                 string `gorm:"index"`
	Platform                string `gorm:"not null"`
	SourceURL               string `gorm:"not null"`
	MP4OwnershipStatus      string `gorm:"not null"`
	MP4OwnerSocialAccountID *string
	MP4OwnershipReason      string
	IsDisqualified          bool `gorm:"not null;default:false"`
	OwnershipResolvedAt     *time.Time
	CreatedAt               time.Time `gorm:"not null"`
	UpdatedAt               time.Time `gorm:"not null"`
}
