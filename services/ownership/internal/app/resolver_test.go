package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"clipclaim/pkg/domain"
)

const sharedVideoURL = "https://www.tiktok.com/@maker/video/7123456789012345678"

// verifyAccount drives an account through request + successful ingest, which
// triggers ownership resolution.
func (e *testEnv) verifyAccount(t *testing.T, accountID string) domain.SocialAccount {
	t.Helper()
	account := e.requestVerification(t, accountID)
	payload := []byte(`{"signature":"bio with ` + account.VerificationCode + `"}`)
	applied, status, err := e.app.IngestResult(context.Background(), account.ID, account.SnapshotID, payload)
	if err != nil || !applied || status != domain.VerificationVerified {
		t.Fatalf("verify account: applied=%v status=%q err=%v", applied, status, err)
	}
	got, _, _ := e.store.GetAccount(accountID)
	return got
}

func TestResolverPromotesWinnerAndDisqualifiesCompetitor(t *testing.T) {
	env := newTestEnv(t)

	assetA := env.uploadVideo(t, "user-1", sharedVideoURL)
	assetB := env.uploadVideo(t, "user-2", sharedVideoURL+"?utm_source=copy")
	if assetB.OwnershipStatus != domain.OwnershipContested {
		t.Fatalf("competitor status %q, want contested", assetB.OwnershipStatus)
	}

	submission := domain.ContestSubmission{
		ID:                 "sub-b",
		ContestID:          "contest-1",
		UserID:             "user-2",
		AssetID:            assetB.ID,
		Platform:           domain.PlatformTikTok,
		SourceURL:          assetB.SourceURL,
		MP4OwnershipStatus: domain.OwnershipPending,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := env.store.SaveSubmission(submission); err != nil {
		t.Fatalf("save submission: %v", err)
	}

	accountX := env.linkAccount(t, "user-1", "maker")
	env.verifyAccount(t, accountX.ID)

	gotA, _, _ := env.store.GetAsset(assetA.ID)
	if gotA.OwnershipStatus != domain.OwnershipVerified {
		t.Fatalf("winner status %q, want verified", gotA.OwnershipStatus)
	}
	if gotA.OwnerSocialAccountID == nil || *gotA.OwnerSocialAccountID != accountX.ID {
		t.Fatal("winner must be bound to the verified account")
	}
	if gotA.VerifiedAt == nil {
		t.Fatal("verified_at must be stamped")
	}

	claim, _, _ := env.store.GetClaim(assetA.Fingerprint)
	if claim.Status != domain.ClaimClaimed || claim.AssetID != assetA.ID || claim.SocialAccountID != accountX.ID {
		t.Fatalf("unexpected claim %+v", claim)
	}

	gotB, _, _ := env.store.GetAsset(assetB.ID)
	if gotB.OwnershipStatus != domain.OwnershipFailed {
		t.Fatalf("competitor status %q, want failed", gotB.OwnershipStatus)
	}
	if !strings.Contains(gotB.OwnershipReason, "maker") {
		t.Fatalf("competitor reason %q must name the winning account", gotB.OwnershipReason)
	}

	gotSub, _, _ := env.store.GetSubmission(submission.ID)
	if !gotSub.IsDisqualified {
		t.Fatal("linked submission must be disqualified")
	}
	if gotSub.OwnershipResolvedAt == nil {
		t.Fatal("ownership_resolved_at must be set")
	}
	if gotSub.MP4OwnershipStatus != domain.OwnershipFailed {
		t.Fatalf("submission status %q, want failed", gotSub.MP4OwnershipStatus)
	}
}

func TestResolverPromotesWinnersLinkedSubmission(t *testing.T) {
	env := newTestEnv(t)
	asset := env.uploadVideo(t, "user-1", sharedVideoURL)

	submission := domain.ContestSubmission{
		ID:                 "sub-a",
		ContestID:          "contest-1",
		UserID:             "user-1",
		AssetID:            asset.ID,
		Platform:           domain.PlatformTikTok,
		SourceURL:          asset.SourceURL,
		MP4OwnershipStatus: domain.OwnershipPending,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := env.store.SaveSubmission(submission); err != nil {
		t.Fatalf("save submission: %v", err)
	}

	account := env.linkAccount(t, "user-1", "maker")
	env.verifyAccount(t, account.ID)

	gotSub, _, _ := env.store.GetSubmission(submission.ID)
	if gotSub.MP4OwnershipStatus != domain.OwnershipVerified {
		t.Fatalf("submission status %q, want verified", gotSub.MP4OwnershipStatus)
	}
	if gotSub.IsDisqualified {
		t.Fatal("winner's submission must not be disqualified")
	}
	if gotSub.MP4OwnerSocialAccountID == nil || *gotSub.MP4OwnerSocialAccountID != account.ID {
		t.Fatal("submission must be bound to the verified account")
	}
}

func TestResolverDoesNotReopenSettledCompetitors(t *testing.T) {
	env := newTestEnv(t)
	assetA := env.uploadVideo(t, "user-1", sharedVideoURL)
	assetB := env.uploadVideo(t, "user-2", sharedVideoURL)

	accountX := env.linkAccount(t, "user-1", "maker")
	env.verifyAccount(t, accountX.ID)

	// The losing claimant verifies a different handle later; the settled
	// outcome stays.
	accountY := env.linkAccount(t, "user-2", "other")
	env.verifyAccount(t, accountY.ID)

	gotA, _, _ := env.store.GetAsset(assetA.ID)
	if gotA.OwnershipStatus != domain.OwnershipVerified {
		t.Fatalf("winner status %q, want verified", gotA.OwnershipStatus)
	}
	gotB, _, _ := env.store.GetAsset(assetB.ID)
	if gotB.OwnershipStatus != domain.OwnershipFailed {
		t.Fatalf("loser status %q, must remain failed", gotB.OwnershipStatus)
	}
	claim, _, _ := env.store.GetClaim(assetA.Fingerprint)
	if claim.SocialAccountID != accountX.ID {
		t.Fatalf("claim owner %q, want first verified account", claim.SocialAccountID)
	}
}

func TestResolverKeepsSettledFingerprintWithFirstVerifiedOwner(t *testing.T) {
	env := newTestEnv(t)
	assetA := env.uploadVideo(t, "user-1", sharedVideoURL)
	accountX := env.linkAccount(t, "user-1", "maker")
	env.verifyAccount(t, accountX.ID)

	// The same video id re-uploaded after resolution, under the late
	// claimant's own handle so their account associates with it.
	assetB := env.uploadVideo(t, "user-2", "https://www.tiktok.com/@other/video/7123456789012345678")
	if assetB.OwnershipStatus != domain.OwnershipContested {
		t.Fatalf("late upload status %q, want contested", assetB.OwnershipStatus)
	}

	accountY := env.linkAccount(t, "user-2", "other")
	env.verifyAccount(t, accountY.ID)

	gotB, _, _ := env.store.GetAsset(assetB.ID)
	if gotB.OwnershipStatus != domain.OwnershipFailed {
		t.Fatalf("late claimant status %q, want failed", gotB.OwnershipStatus)
	}
	if !strings.Contains(gotB.OwnershipReason, "maker") {
		t.Fatalf("reason %q must name the standing owner", gotB.OwnershipReason)
	}

	gotA, _, _ := env.store.GetAsset(assetA.ID)
	if gotA.OwnershipStatus != domain.OwnershipVerified {
		t.Fatalf("settled owner status %q, must stay verified", gotA.OwnershipStatus)
	}
	claim, _, _ := env.store.GetClaim(assetA.Fingerprint)
	if claim.Status != domain.ClaimClaimed || claim.SocialAccountID != accountX.ID {
		t.Fatalf("claim %+v, must stay with the first verified account", claim)
	}

	all, err := env.store.ListAssetsByFingerprint(assetA.Fingerprint)
	if err != nil {
		t.Fatalf("list by fingerprint: %v", err)
	}
	verified := 0
	for _, asset := range all {
		if asset.OwnershipStatus == domain.OwnershipVerified {
			verified++
		}
	}
	if verified != 1 {
		t.Fatalf("verified assets for fingerprint = %d, want exactly 1", verified)
	}
}

func TestResolverAssociatesOnlyMatchingHandles(t *testing.T) {
	env := newTestEnv(t)
	matching := env.uploadVideo(t, "user-1", sharedVideoURL)
	foreign := env.uploadVideo(t, "user-1", "https://www.tiktok.com/@someoneelse/video/999")

	account := env.linkAccount(t, "user-1", "maker")
	env.verifyAccount(t, account.ID)

	gotMatching, _, _ := env.store.GetAsset(matching.ID)
	if gotMatching.OwnerSocialAccountID == nil {
		t.Fatal("asset on the verified handle must be bound")
	}
	gotForeign, _, _ := env.store.GetAsset(foreign.ID)
	if gotForeign.OwnerSocialAccountID != nil {
		t.Fatal("asset on a foreign handle must stay unbound")
	}
	if gotForeign.OwnershipStatus != domain.OwnershipPending {
		t.Fatalf("foreign asset status %q, must stay pending", gotForeign.OwnershipStatus)
	}
}
