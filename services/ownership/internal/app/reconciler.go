package app

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"clipclaim/internal/util"
	"clipclaim/pkg/domain"
	"clipclaim/pkg/scraper"
)

// ReconcileResult aggregates one reconciler run.
type ReconcileResult struct {
	Processed    int `json:"processed"`
	Verified     int `json:"verified"`
	Failed       int `json:"failed"`
	StillPending int `json:"stillPending"`
}

// Reconcile is the pull-path counterpart to the inbound webhook: it polls the
// provider for every account still waiting on a result and feeds ready
// payloads into the same ingest path the webhook uses. Each record is
// isolated; one account's provider error never aborts the batch. Overlapping
// runs are safe because every write is guarded on the current state.
func (a *App) Reconcile(ctx context.Context) (ReconcileResult, error) {
	accounts, err := a.store.ListAccountsAwaitingResult(a.batchSize)
	if err != nil {
		return ReconcileResult{}, err
	}
	if len(accounts) == 0 {
		return ReconcileResult{}, nil
	}

	var mu sync.Mutex
	res := ReconcileResult{Processed: len(accounts)}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.batchLimit)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			outcome := a.reconcileOne(ctx, account)
			mu.Lock()
			switch outcome {
			case domain.VerificationVerified:
				res.Verified++
			case domain.VerificationFailed:
				res.Failed++
			default:
				res.StillPending++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

// reconcileOne polls one account's job and returns the verification status it
// settled on, or PENDING when the job is still in flight.
func (a *App) reconcileOne(ctx context.Context, account domain.SocialAccount) domain.VerificationStatus {
	logger := util.LoggerFromContext(ctx)

	state, err := a.provider.Status(ctx, account.SnapshotID)
	if err != nil {
		// Provider hiccups are not terminal; the next run asks again.
		logger.Warn("provider status failed", "account_id", account.ID, "snapshot_id", account.SnapshotID, "err", err)
		return domain.VerificationPending
	}
	switch state {
	case scraper.JobRunning, scraper.JobNotFound:
		return domain.VerificationPending
	case scraper.JobFailed:
		applied, err := a.markDeliveryFailed(account.ID, account.SnapshotID)
		if err != nil {
			logger.Warn("mark delivery failed", "account_id", account.ID, "err", err)
			return domain.VerificationPending
		}
		if !applied {
			// Another path already settled this account.
			return domain.VerificationPending
		}
		return domain.VerificationFailed
	}

	payload, err := a.provider.Fetch(ctx, account.SnapshotID)
	if err != nil {
		logger.Warn("provider fetch failed", "account_id", account.ID, "snapshot_id", account.SnapshotID, "err", err)
		return domain.VerificationPending
	}
	applied, status, err := a.IngestResult(ctx, account.ID, account.SnapshotID, payload)
	if err != nil {
		logger.Warn("ingest result failed", "account_id", account.ID, "err", err)
		return domain.VerificationPending
	}
	if !applied {
		return domain.VerificationPending
	}
	return status
}
