package domain

import "time"

// ClaimUpdate is one attempt to claim a fingerprint.
type ClaimUpdate struct {
	Fingerprint     string
	Platform        Platform
	AssetID         string
	UserID          string
	SocialAccountID string
	Status          ClaimStatus
}

// NewClaim builds the registry row for the first claim attempt on a fingerprint.
func NewClaim(u ClaimUpdate, now time.Time) OwnershipClaim {
	claim := OwnershipClaim{
		Fingerprint:     u.Fingerprint,
		Platform:        u.Platform,
		AssetID:         u.AssetID,
		UserID:          u.UserID,
		SocialAccountID: u.SocialAccountID,
		Status:          u.Status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if u.Status == ClaimContested {
		claim.ContestedCount = 1
		t := now
		claim.LastContestedAt = &t
	}
	return claim
}

// ApplyClaimUpdate merges an incoming claim attempt into an existing registry
// row and reports whether the row changed. The rules make the registry safe
// against out-of-order delivery of weak signals:
//
//   - claimed overwrites the owner fields unconditionally (last writer wins)
//     and preserves the contested counter;
//   - contested increments the counter, stamps last_contested_at, and keeps a
//     claimed row claimed instead of weakening it;
//   - pending applies only over an unclaimed row and never downgrades a
//     stronger claim.
//
// The contested counter is monotonic; no transition decrements it.
func ApplyClaimUpdate(claim OwnershipClaim, u ClaimUpdate, now time.Time) (OwnershipClaim, bool) {
	switch u.Status {
	case ClaimClaimed:
		claim.AssetID = u.AssetID
		claim.UserID = u.UserID
		claim.SocialAccountID = u.SocialAccountID
		claim.Status = ClaimClaimed
		claim.UpdatedAt = now
		return claim, true
	case ClaimContested:
		claim.ContestedCount++
		if claim.Status != ClaimClaimed {
			claim.Status = ClaimContested
		}
		t := now
		claim.LastContestedAt = &t
		claim.UpdatedAt = now
		return claim, true
	case ClaimPending:
		if claim.Status != ClaimUnclaimed {
			return claim, false
		}
		claim.AssetID = u.AssetID
		claim.UserID = u.UserID
		claim.SocialAccountID = u.SocialAccountID
		claim.Status = ClaimPending
		claim.UpdatedAt = now
		return claim, true
	default:
		return claim, false
	}
}
