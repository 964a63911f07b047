package domain

import (
	"testing"
	"time"
)

func TestNewClaimSeedsContestedCounter(t *testing.T) {
	now := time.Now().UTC()

	claim := NewClaim(ClaimUpdate{Fingerprint: "youtube:abc", Status: ClaimPending}, now)
	if claim.ContestedCount != 0 {
		t.Fatalf("pending insert should not seed counter, got %d", claim.ContestedCount)
	}

	claim = NewClaim(ClaimUpdate{Fingerprint: "youtube:abc", Status: ClaimContested}, now)
	if claim.ContestedCount != 1 {
		t.Fatalf("contested insert should seed counter to 1, got %d", claim.ContestedCount)
	}
	if claim.LastContestedAt == nil {
		t.Fatal("contested insert should stamp last_contested_at")
	}
}

func TestApplyClaimUpdateClaimedOverwritesAndPreservesCounter(t *testing.T) {
	now := time.Now().UTC()
	claim := NewClaim(ClaimUpdate{Fingerprint: "tiktok:1", AssetID: "a1", UserID: "u1", Status: ClaimContested}, now)

	updated, changed := ApplyClaimUpdate(claim, ClaimUpdate{
		AssetID: "a2", UserID: "u2", SocialAccountID: "s2", Status: ClaimClaimed,
	}, now.Add(time.Minute))
	if !changed {
		t.Fatal("claimed update should always apply")
	}
	if updated.Status != ClaimClaimed || updated.AssetID != "a2" || updated.UserID != "u2" {
		t.Fatalf("claimed update should overwrite owner fields, got %+v", updated)
	}
	if updated.ContestedCount != 1 {
		t.Fatalf("claimed update must preserve contested count, got %d", updated.ContestedCount)
	}
}

func TestApplyClaimUpdateContestedNeverDowngradesClaimed(t *testing.T) {
	now := time.Now().UTC()
	claim := NewClaim(ClaimUpdate{Fingerprint: "tiktok:1", AssetID: "a1", Status: ClaimClaimed}, now)

	updated, changed := ApplyClaimUpdate(claim, ClaimUpdate{AssetID: "a2", Status: ClaimContested}, now.Add(time.Minute))
	if !changed {
		t.Fatal("contested update should apply")
	}
	if updated.Status != ClaimClaimed {
		t.Fatalf("contested must not downgrade claimed, got %s", updated.Status)
	}
	if updated.ContestedCount != 1 {
		t.Fatalf("contested should increment counter, got %d", updated.ContestedCount)
	}
	if updated.AssetID != "a1" {
		t.Fatalf("contested must not steal ownership, got asset %s", updated.AssetID)
	}
	if updated.LastContestedAt == nil {
		t.Fatal("contested should stamp last_contested_at")
	}
}

func TestApplyClaimUpdatePendingIsWeak(t *testing.T) {
	now := time.Now().UTC()

	for _, status := range []ClaimStatus{ClaimPending, ClaimClaimed, ClaimContested} {
		claim := OwnershipClaim{Fingerprint: "x:9", AssetID: "a1", Status: status, CreatedAt: now, UpdatedAt: now}
		updated, changed := ApplyClaimUpdate(claim, ClaimUpdate{AssetID: "a2", Status: ClaimPending}, now.Add(time.Minute))
		if changed {
			t.Fatalf("pending over %s should be a no-op", status)
		}
		if updated.Status != status || updated.AssetID != "a1" {
			t.Fatalf("pending over %s must not mutate the row, got %+v", status, updated)
		}
	}

	claim := OwnershipClaim{Fingerprint: "x:9", Status: ClaimUnclaimed, CreatedAt: now, UpdatedAt: now}
	updated, changed := ApplyClaimUpdate(claim, ClaimUpdate{AssetID: "a2", UserID: "u2", Status: ClaimPending}, now)
	if !changed || updated.Status != ClaimPending || updated.AssetID != "a2" {
		t.Fatalf("pending over unclaimed should apply, got changed=%v %+v", changed, updated)
	}
}
