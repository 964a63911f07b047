package store

import (
	"time"

	"clipclaim/pkg/domain"
)

// VerificationResult is the terminal outcome applied to a social account by
// either delivery path. The store commits it only while the account is still
// PENDING for the given snapshot id, which makes delivery idempotent no
// matter how many times or through which path the same result arrives.
type VerificationResult struct {
	VerificationStatus domain.VerificationStatus // VERIFIED or FAILED
	WebhookStatus      domain.WebhookStatus      // COMPLETED or FAILED
	ProfileData        []byte
}

// AssetOwnershipUpdate mutates the ownership fields of a raw video asset.
type AssetOwnershipUpdate struct {
	Status               domain.OwnershipStatus
	Reason               string
	OwnerSocialAccountID *string
	VerifiedAt           *time.Time
}

// SubmissionOwnershipUpdate mutates the ownership fields of a contest submission.
type SubmissionOwnershipUpdate struct {
	Status               domain.OwnershipStatus
	Reason               string
	OwnerSocialAccountID *string
	Disqualified         bool
	ResolvedAt           *time.Time
}

// Store defines persistence for accounts, assets, claims, and submission
// ownership fields. Every state-changing write that can race between the
// webhook push path, the reconciler pull path, and concurrent resolver runs
// is conditional on the current state.
type Store interface {
	// social accounts
	SaveAccount(domain.SocialAccount) error
	GetAccount(id string) (domain.SocialAccount, bool, error)
	GetAccountBySnapshotID(snapshotID string) (domain.SocialAccount, bool, error)
	ListAccountsAwaitingResult(limit int) ([]domain.SocialAccount, error)
	// ApplyVerificationResult commits res only while the account is PENDING
	// for snapshotID. VERIFIED resets the attempt counter, FAILED increments
	// it. Returns false when the guard rejected the write.
	ApplyVerificationResult(id, snapshotID string, res VerificationResult) (bool, error)

	// assets
	SaveAsset(domain.RawVideoAsset) error
	GetAsset(id string) (domain.RawVideoAsset, bool, error)
	ListAssetsByFingerprint(fp string) ([]domain.RawVideoAsset, error)
	ListUnboundAssets(userID string, platform domain.Platform) ([]domain.RawVideoAsset, error)
	ListAssetsByAccount(socialAccountID string, statuses ...domain.OwnershipStatus) ([]domain.RawVideoAsset, error)
	// BindAssetOwner sets the owner account only where it is still unset.
	BindAssetOwner(id, socialAccountID string) (bool, error)
	UpdateAssetOwnership(id string, upd AssetOwnershipUpdate) error

	// ownership claims
	UpsertClaim(u domain.ClaimUpdate) (domain.OwnershipClaim, error)
	GetClaim(fingerprint string) (domain.OwnershipClaim, bool, error)

	// contest submissions (ownership fields only)
	SaveSubmission(domain.ContestSubmission) error
	GetSubmission(id string) (domain.ContestSubmission, bool, error)
	ListSubmissionsByAsset(assetID string) ([]domain.ContestSubmission, error)
	ListUnboundSubmissions(userID string, platform domain.Platform) ([]domain.ContestSubmission, error)
	BindSubmissionOwner(id, socialAccountID string) (bool, error)
	UpdateSubmissionOwnership(id string, upd SubmissionOwnershipUpdate) error
}
