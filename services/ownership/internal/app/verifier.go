package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipclaim/internal/util"
	"clipclaim/pkg/domain"
	"clipclaim/pkg/events"
	"clipclaim/pkg/fingerprint"
	"clipclaim/pkg/scraper"
	"clipclaim/pkg/store"
)

// LinkAccount registers a user's claimed identity on a platform. The account
// starts UNVERIFIED; ownership of it is only trusted after verification.
func (a *App) LinkAccount(userID, platformRaw, profileURL, username string) (domain.SocialAccount, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.SocialAccount{}, errors.New("user id required")
	}
	if !domain.IsValidPlatform(platformRaw) {
		return domain.SocialAccount{}, ErrInvalidPlatform
	}
	profileURL = strings.TrimSpace(profileURL)
	if profileURL == "" {
		return domain.SocialAccount{}, errors.New("profile url required")
	}
	platform := domain.NormalizePlatform(platformRaw)
	username = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(username)), "@")
	if username == "" {
		username = fingerprint.HandleFromURL(platform, profileURL)
	}
	now := time.Now().UTC()
	account := domain.SocialAccount{
		ID:                 util.NewID(),
		UserID:             userID,
		Platform:           platform,
		ProfileURL:         profileURL,
		Username:           username,
		VerificationStatus: domain.VerificationUnverified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := a.store.SaveAccount(account); err != nil {
		return domain.SocialAccount{}, err
	}
	return account, nil
}

// GetSocialAccount retrieves one account by ID.
func (a *App) GetSocialAccount(id string) (domain.SocialAccount, bool, error) {
	return a.store.GetAccount(id)
}

// AccountBySnapshotID resolves an external correlation id to its account.
func (a *App) AccountBySnapshotID(snapshotID string) (domain.SocialAccount, bool, error) {
	return a.store.GetAccountBySnapshotID(snapshotID)
}

// RequestVerification starts (or restarts) the asynchronous ownership check
// for an account: generate the code if absent, trigger a scrape of the
// profile, and record the returned snapshot id. A retry after FAILED clears
// the stale profile payload; the fresh snapshot id orphans the prior job, so
// any late delivery for the old id is ignored by the ingest guard.
func (a *App) RequestVerification(ctx context.Context, accountID string) (domain.SocialAccount, error) {
	account, ok, err := a.store.GetAccount(accountID)
	if err != nil {
		return domain.SocialAccount{}, err
	}
	if !ok {
		return domain.SocialAccount{}, ErrAccountNotFound
	}
	if account.VerificationStatus == domain.VerificationVerified {
		return domain.SocialAccount{}, ErrAlreadyVerified
	}
	if !a.provider.Configured() {
		return domain.SocialAccount{}, scraper.ErrNotConfigured
	}

	if account.VerificationCode == "" {
		account.VerificationCode = newVerificationCode()
	}
	target := scraper.ProfileTargetURL(account.Platform, account.ProfileURL)
	snapshotID, err := a.provider.Trigger(ctx, target)
	if err != nil {
		if errors.Is(err, scraper.ErrNotConfigured) {
			return domain.SocialAccount{}, err
		}
		return domain.SocialAccount{}, &ProviderError{Err: err}
	}

	if account.VerificationStatus == domain.VerificationFailed {
		account.ProfileData = nil
	}
	account.SnapshotID = snapshotID
	account.WebhookStatus = domain.WebhookPending
	account.VerificationStatus = domain.VerificationPending
	account.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveAccount(account); err != nil {
		return domain.SocialAccount{}, err
	}
	return account, nil
}

// IngestResult is the single entry point both delivery paths feed: the
// webhook push (via the queue consumer) and the reconciler poll. The commit
// only lands while the account is still PENDING for this snapshot id, so a
// duplicate or late delivery is a no-op.
func (a *App) IngestResult(ctx context.Context, accountID, snapshotID string, payload []byte) (bool, domain.VerificationStatus, error) {
	account, ok, err := a.store.GetAccount(accountID)
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, "", ErrAccountNotFound
	}

	bio := scraper.ExtractBio(account.Platform, payload)
	status := domain.VerificationFailed
	if scraper.ContainsCode(bio, account.VerificationCode) {
		status = domain.VerificationVerified
	}

	applied, err := a.store.ApplyVerificationResult(accountID, snapshotID, store.VerificationResult{
		VerificationStatus: status,
		WebhookStatus:      domain.WebhookCompleted,
		ProfileData:        payload,
	})
	if err != nil {
		return false, status, err
	}
	if !applied {
		return false, status, nil
	}

	if status == domain.VerificationVerified {
		account.VerificationStatus = status
		if err := a.resolveOwnership(ctx, account); err != nil {
			slog.Warn("ownership resolution failed", "account_id", account.ID, "err", err)
		}
		if err := a.events.Publish(ctx, events.TopicAccountVerified, map[string]any{
			"accountId": account.ID,
			"userId":    account.UserID,
			"platform":  account.Platform,
			"username":  account.Username,
		}); err != nil {
			slog.Warn("publish account.verified failed", "account_id", account.ID, "err", err)
		}
	}
	return true, status, nil
}

// markDeliveryFailed records a terminal provider failure for an account still
// waiting on a result.
func (a *App) markDeliveryFailed(accountID, snapshotID string) (bool, error) {
	return a.store.ApplyVerificationResult(accountID, snapshotID, store.VerificationResult{
		VerificationStatus: domain.VerificationFailed,
		WebhookStatus:      domain.WebhookFailed,
	})
}

func newVerificationCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "CLIP-" + raw[:10]
}
