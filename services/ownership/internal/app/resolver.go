package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipclaim/pkg/domain"
	"clipclaim/pkg/events"
	"clipclaim/pkg/fingerprint"
	"clipclaim/pkg/store"
)

// resolveOwnership runs when an account reaches VERIFIED. It binds the user's
// unbound assets and submissions whose source URL names this account, promotes
// the account's pending and contested assets to verified ownership, and
// disqualifies every competing asset on the same fingerprints. First account
// to verify wins: a fingerprint whose claim is already claimed by another
// account is never promoted, even for assets uploaded after that resolution,
// so a later verifier cannot mint a second verified owner.
func (a *App) resolveOwnership(ctx context.Context, account domain.SocialAccount) error {
	if err := a.associate(account); err != nil {
		return fmt.Errorf("associate: %w", err)
	}

	owned, err := a.store.ListAssetsByAccount(account.ID, domain.OwnershipPending, domain.OwnershipContested)
	if err != nil {
		return fmt.Errorf("list owned assets: %w", err)
	}
	now := time.Now().UTC()
	for _, asset := range owned {
		standing, taken, err := a.standingClaim(account, asset)
		if err != nil {
			slog.Warn("claim lookup failed", "asset_id", asset.ID, "err", err)
			continue
		}
		if taken {
			if err := a.disqualifyAsset(ctx, asset, a.standingOwnerReason(standing), now); err != nil {
				slog.Warn("disqualify failed", "asset_id", asset.ID, "err", err)
			}
			continue
		}
		if err := a.promote(ctx, account, asset, now); err != nil {
			slog.Warn("promote failed", "asset_id", asset.ID, "err", err)
			continue
		}
		if err := a.disqualifyCompetitors(ctx, account, asset, now); err != nil {
			slog.Warn("disqualify failed", "asset_id", asset.ID, "err", err)
		}
	}

	if err := a.events.Publish(ctx, events.TopicOwnershipResolved, map[string]any{
		"accountId": account.ID,
		"userId":    account.UserID,
		"platform":  account.Platform,
		"assets":    len(owned),
	}); err != nil {
		slog.Warn("publish ownership.resolved failed", "account_id", account.ID, "err", err)
	}
	return nil
}

// associate binds the owner account on the user's previously unbound assets
// and submissions whose source URL structurally matches the verified
// identity. Handle equivalence, not full-content fingerprint.
func (a *App) associate(account domain.SocialAccount) error {
	assets, err := a.store.ListUnboundAssets(account.UserID, account.Platform)
	if err != nil {
		return err
	}
	for _, asset := range assets {
		if !handleMatches(account, asset.SourceURL) {
			continue
		}
		if _, err := a.store.BindAssetOwner(asset.ID, account.ID); err != nil {
			return err
		}
	}

	submissions, err := a.store.ListUnboundSubmissions(account.UserID, account.Platform)
	if err != nil {
		return err
	}
	for _, submission := range submissions {
		if !handleMatches(account, submission.SourceURL) {
			continue
		}
		if _, err := a.store.BindSubmissionOwner(submission.ID, account.ID); err != nil {
			return err
		}
	}
	return nil
}

// standingClaim reports whether the asset's fingerprint is already claimed by
// a different account. Such assets lost the race no matter when they were
// uploaded.
func (a *App) standingClaim(account domain.SocialAccount, asset domain.RawVideoAsset) (domain.OwnershipClaim, bool, error) {
	claim, ok, err := a.store.GetClaim(asset.Fingerprint)
	if err != nil {
		return domain.OwnershipClaim{}, false, err
	}
	if !ok || claim.Status != domain.ClaimClaimed || claim.SocialAccountID == "" || claim.SocialAccountID == account.ID {
		return domain.OwnershipClaim{}, false, nil
	}
	return claim, true, nil
}

// standingOwnerReason names the account holding a settled claim.
func (a *App) standingOwnerReason(claim domain.OwnershipClaim) string {
	owner, ok, err := a.store.GetAccount(claim.SocialAccountID)
	if err != nil || !ok {
		return "ownership already claimed by another verified account"
	}
	return fmt.Sprintf("ownership claimed by verified %s account @%s", owner.Platform, owner.Username)
}

// promote marks one asset verified, registers the claimed ownership, and
// carries the outcome onto the asset's linked submissions.
func (a *App) promote(ctx context.Context, account domain.SocialAccount, asset domain.RawVideoAsset, now time.Time) error {
	verifiedAt := now
	reason := fmt.Sprintf("ownership verified via %s account @%s", account.Platform, account.Username)
	if err := a.store.UpdateAssetOwnership(asset.ID, store.AssetOwnershipUpdate{
		Status:               domain.OwnershipVerified,
		Reason:               reason,
		OwnerSocialAccountID: &account.ID,
		VerifiedAt:           &verifiedAt,
	}); err != nil {
		return err
	}
	if _, err := a.store.UpsertClaim(domain.ClaimUpdate{
		Fingerprint:     asset.Fingerprint,
		Platform:        asset.Platform,
		AssetID:         asset.ID,
		UserID:          account.UserID,
		SocialAccountID: account.ID,
		Status:          domain.ClaimClaimed,
	}); err != nil {
		return err
	}

	submissions, err := a.store.ListSubmissionsByAsset(asset.ID)
	if err != nil {
		return err
	}
	resolvedAt := now
	for _, submission := range submissions {
		if err := a.store.UpdateSubmissionOwnership(submission.ID, store.SubmissionOwnershipUpdate{
			Status:               domain.OwnershipVerified,
			Reason:               reason,
			OwnerSocialAccountID: &account.ID,
			ResolvedAt:           &resolvedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// disqualifyCompetitors fails every other claimant of the winning asset's
// fingerprint and cascades the disqualification to their submissions.
func (a *App) disqualifyCompetitors(ctx context.Context, account domain.SocialAccount, winner domain.RawVideoAsset, now time.Time) error {
	competitors, err := a.store.ListAssetsByFingerprint(winner.Fingerprint)
	if err != nil {
		return err
	}
	reason := fmt.Sprintf("ownership claimed by verified %s account @%s", account.Platform, account.Username)
	for _, other := range competitors {
		if other.ID == winner.ID {
			continue
		}
		if other.OwnershipStatus != domain.OwnershipPending && other.OwnershipStatus != domain.OwnershipContested {
			continue
		}
		if err := a.disqualifyAsset(ctx, other, reason, now); err != nil {
			return err
		}
	}
	return nil
}

// disqualifyAsset fails one asset and cascades the disqualification to its
// linked submissions.
func (a *App) disqualifyAsset(ctx context.Context, asset domain.RawVideoAsset, reason string, now time.Time) error {
	if err := a.store.UpdateAssetOwnership(asset.ID, store.AssetOwnershipUpdate{
		Status: domain.OwnershipFailed,
		Reason: reason,
	}); err != nil {
		return err
	}
	submissions, err := a.store.ListSubmissionsByAsset(asset.ID)
	if err != nil {
		return err
	}
	resolvedAt := now
	for _, submission := range submissions {
		if err := a.store.UpdateSubmissionOwnership(submission.ID, store.SubmissionOwnershipUpdate{
			Status:       domain.OwnershipFailed,
			Reason:       reason,
			Disqualified: true,
			ResolvedAt:   &resolvedAt,
		}); err != nil {
			return err
		}
		if err := a.events.Publish(ctx, events.TopicSubmissionDisqualified, map[string]any{
			"submissionId": submission.ID,
			"assetId":      asset.ID,
			"reason":       reason,
		}); err != nil {
			slog.Warn("publish submission.disqualified failed", "submission_id", submission.ID, "err", err)
		}
	}
	return nil
}

// handleMatches reports whether a source URL names the account's handle on
// its platform.
func handleMatches(account domain.SocialAccount, sourceURL string) bool {
	handle := strings.ToLower(strings.TrimSpace(account.Username))
	if handle == "" {
		handle = fingerprint.HandleFromURL(account.Platform, account.ProfileURL)
	}
	if handle == "" {
		return false
	}
	return fingerprint.HandleFromURL(account.Platform, sourceURL) == handle
}
