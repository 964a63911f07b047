package store

import (
	"testing"
	"time"

	"clipclaim/pkg/domain"
)

func pendingAccount(t *testing.T, m *MemoryStore, id, snapshotID string) domain.SocialAccount {
	t.Helper()
	now := time.Now().UTC()
	account := domain.SocialAccount{
		ID:                 id,
		UserID:             "u1",
		Platform:           domain.PlatformTikTok,
		ProfileURL:         "https://www.tiktok.com/@maker",
		Username:           "maker",
		VerificationCode:   "CODE-" + id,
		SnapshotID:         snapshotID,
		WebhookStatus:      domain.WebhookPending,
		VerificationStatus: domain.VerificationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.SaveAccount(account); err != nil {
		t.Fatalf("save account: %v", err)
	}
	return account
}

func TestApplyVerificationResultIsIdempotent(t *testing.T) {
	m := NewMemoryStore()
	pendingAccount(t, m, "acc-1", "snap-1")

	res := VerificationResult{
		VerificationStatus: domain.VerificationVerified,
		WebhookStatus:      domain.WebhookCompleted,
		ProfileData:        []byte(`{"bio":"code here"}`),
	}
	applied, err := m.ApplyVerificationResult("acc-1", "snap-1", res)
	if err != nil || !applied {
		t.Fatalf("first delivery should apply, got applied=%v err=%v", applied, err)
	}
	applied, err = m.ApplyVerificationResult("acc-1", "snap-1", res)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if applied {
		t.Fatal("second delivery of the same result must be a no-op")
	}

	account, _, _ := m.GetAccount("acc-1")
	if account.VerificationStatus != domain.VerificationVerified {
		t.Fatalf("unexpected status %s", account.VerificationStatus)
	}
	if account.VerificationAttempts != 0 {
		t.Fatalf("verified outcome should reset attempts, got %d", account.VerificationAttempts)
	}
}

func TestApplyVerificationResultRejectsStaleSnapshot(t *testing.T) {
	m := NewMemoryStore()
	pendingAccount(t, m, "acc-1", "snap-new")

	applied, err := m.ApplyVerificationResult("acc-1", "snap-old", VerificationResult{
		VerificationStatus: domain.VerificationVerified,
		WebhookStatus:      domain.WebhookCompleted,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatal("a late delivery for an orphaned snapshot id must be ignored")
	}
}

func TestApplyVerificationResultFailedIncrementsAttempts(t *testing.T) {
	m := NewMemoryStore()
	pendingAccount(t, m, "acc-1", "snap-1")

	applied, err := m.ApplyVerificationResult("acc-1", "snap-1", VerificationResult{
		VerificationStatus: domain.VerificationFailed,
		WebhookStatus:      domain.WebhookCompleted,
		ProfileData:        []byte(`{"bio":"no code"}`),
	})
	if err != nil || !applied {
		t.Fatalf("apply failed result: applied=%v err=%v", applied, err)
	}
	account, _, _ := m.GetAccount("acc-1")
	if account.VerificationAttempts != 1 {
		t.Fatalf("failed outcome should increment attempts by 1, got %d", account.VerificationAttempts)
	}
	if account.VerificationStatus != domain.VerificationFailed {
		t.Fatalf("unexpected status %s", account.VerificationStatus)
	}
}

func TestUpsertClaimRules(t *testing.T) {
	m := NewMemoryStore()

	claim, err := m.UpsertClaim(domain.ClaimUpdate{
		Fingerprint: "tiktok:1", Platform: domain.PlatformTikTok,
		AssetID: "a1", UserID: "u1", Status: domain.ClaimPending,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if claim.Status != domain.ClaimPending || claim.ContestedCount != 0 {
		t.Fatalf("unexpected inserted claim %+v", claim)
	}

	claim, err = m.UpsertClaim(domain.ClaimUpdate{
		Fingerprint: "tiktok:1", AssetID: "a1", UserID: "u1", SocialAccountID: "s1",
		Status: domain.ClaimClaimed,
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.Status != domain.ClaimClaimed {
		t.Fatalf("expected claimed, got %s", claim.Status)
	}

	// A weak pending signal arriving after a strong claimed one is ignored.
	claim, err = m.UpsertClaim(domain.ClaimUpdate{
		Fingerprint: "tiktok:1", AssetID: "a2", UserID: "u2", Status: domain.ClaimPending,
	})
	if err != nil {
		t.Fatalf("pending after claimed: %v", err)
	}
	if claim.Status != domain.ClaimClaimed || claim.AssetID != "a1" {
		t.Fatalf("pending must not downgrade claimed, got %+v", claim)
	}

	claim, err = m.UpsertClaim(domain.ClaimUpdate{
		Fingerprint: "tiktok:1", AssetID: "a3", UserID: "u3", Status: domain.ClaimContested,
	})
	if err != nil {
		t.Fatalf("contest: %v", err)
	}
	if claim.Status != domain.ClaimClaimed || claim.ContestedCount != 1 || claim.LastContestedAt == nil {
		t.Fatalf("contested over claimed should only bump the counter, got %+v", claim)
	}
}

func TestBindOwnerOnlyWhenUnset(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now().UTC()
	if err := m.SaveAsset(domain.RawVideoAsset{
		ID: "a1", OwnerUserID: "u1", Platform: domain.PlatformTikTok,
		OwnershipStatus: domain.OwnershipPending, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("save asset: %v", err)
	}

	bound, err := m.BindAssetOwner("a1", "s1")
	if err != nil || !bound {
		t.Fatalf("first bind should apply, got bound=%v err=%v", bound, err)
	}
	bound, err = m.BindAssetOwner("a1", "s2")
	if err != nil {
		t.Fatalf("second bind: %v", err)
	}
	if bound {
		t.Fatal("second bind must not overwrite the owner")
	}
	asset, _, _ := m.GetAsset("a1")
	if asset.OwnerSocialAccountID == nil || *asset.OwnerSocialAccountID != "s1" {
		t.Fatalf("unexpected owner %+v", asset.OwnerSocialAccountID)
	}
}

func TestListAccountsAwaitingResult(t *testing.T) {
	m := NewMemoryStore()
	pendingAccount(t, m, "acc-1", "snap-1")

	// Account without a snapshot id is not eligible.
	noSnapshot := pendingAccount(t, m, "acc-2", "")
	noSnapshot.SnapshotID = ""
	_ = m.SaveAccount(noSnapshot)

	eligible, err := m.ListAccountsAwaitingResult(50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != "acc-1" {
		t.Fatalf("expected only acc-1 eligible, got %+v", eligible)
	}
}
