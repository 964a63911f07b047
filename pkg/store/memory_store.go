package store

import (
	"sort"
	"sync"
	"time"

	"clipclaim/pkg/domain"
)

// MemoryStore keeps all records in-process. It applies the same conditional
// write rules as the Postgres store and backs the test suites.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]domain.SocialAccount
	assets      map[string]domain.RawVideoAsset
	claims      map[string]domain.OwnershipClaim
	submissions map[string]domain.ContestSubmission
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]domain.SocialAccount),
		assets:      make(map[string]domain.RawVideoAsset),
		claims:      make(map[string]domain.OwnershipClaim),
		submissions: make(map[string]domain.ContestSubmission),
	}
}

// SaveAccount stores or replaces a social account.
func (m *MemoryStore) SaveAccount(a domain.SocialAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

// GetAccount returns an account by ID.
func (m *MemoryStore) GetAccount(id string) (domain.SocialAccount, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	return a, ok, nil
}

// GetAccountBySnapshotID resolves an external correlation id to an account.
func (m *MemoryStore) GetAccountBySnapshotID(snapshotID string) (domain.SocialAccount, bool, error) {
	if snapshotID == "" {
		return domain.SocialAccount{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.SnapshotID == snapshotID {
			return a, true, nil
		}
	}
	return domain.SocialAccount{}, false, nil
}

// ListAccountsAwaitingResult returns accounts still waiting on a scrape result.
func (m *MemoryStore) ListAccountsAwaitingResult(limit int) ([]domain.SocialAccount, error) {
	if limit <= 0 {
		return []domain.SocialAccount{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.SocialAccount, 0)
	for _, a := range m.accounts {
		if a.WebhookStatus == domain.WebhookPending &&
			a.VerificationStatus == domain.VerificationPending &&
			a.SnapshotID != "" {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.Before(res[j].UpdatedAt) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// ApplyVerificationResult commits a terminal outcome only while the account
// is still PENDING for the given snapshot id.
func (m *MemoryStore) ApplyVerificationResult(id, snapshotID string, res VerificationResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.VerificationStatus != domain.VerificationPending || a.SnapshotID != snapshotID {
		return false, nil
	}
	a.VerificationStatus = res.VerificationStatus
	a.WebhookStatus = res.WebhookStatus
	if res.VerificationStatus == domain.VerificationVerified {
		a.VerificationAttempts = 0
	} else {
		a.VerificationAttempts++
	}
	if res.ProfileData != nil {
		a.ProfileData = res.ProfileData
	}
	a.UpdatedAt = time.Now().UTC()
	m.accounts[id] = a
	return true, nil
}

// SaveAsset inserts an asset record.
func (m *MemoryStore) SaveAsset(a domain.RawVideoAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a.ID] = a
	return nil
}

// GetAsset retrieves an asset by ID.
func (m *MemoryStore) GetAsset(id string) (domain.RawVideoAsset, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	return a, ok, nil
}

// ListAssetsByFingerprint returns all assets claiming one video.
func (m *MemoryStore) ListAssetsByFingerprint(fp string) ([]domain.RawVideoAsset, error) {
	return m.filterAssets(func(a domain.RawVideoAsset) bool { return a.Fingerprint == fp }), nil
}

// ListUnboundAssets returns a user's assets on a platform with no owner bound.
func (m *MemoryStore) ListUnboundAssets(userID string, platform domain.Platform) ([]domain.RawVideoAsset, error) {
	return m.filterAssets(func(a domain.RawVideoAsset) bool {
		return a.OwnerUserID == userID && a.Platform == platform && a.OwnerSocialAccountID == nil
	}), nil
}

// ListAssetsByAccount returns assets bound to an account.
func (m *MemoryStore) ListAssetsByAccount(socialAccountID string, statuses ...domain.OwnershipStatus) ([]domain.RawVideoAsset, error) {
	return m.filterAssets(func(a domain.RawVideoAsset) bool {
		if a.OwnerSocialAccountID == nil || *a.OwnerSocialAccountID != socialAccountID {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, status := range statuses {
			if a.OwnershipStatus == status {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryStore) filterAssets(keep func(domain.RawVideoAsset) bool) []domain.RawVideoAsset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.RawVideoAsset, 0)
	for _, a := range m.assets {
		if keep(a) {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res
}

// BindAssetOwner sets the owner account only where it is still unset.
func (m *MemoryStore) BindAssetOwner(id, socialAccountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok || a.OwnerSocialAccountID != nil {
		return false, nil
	}
	a.OwnerSocialAccountID = &socialAccountID
	a.UpdatedAt = time.Now().UTC()
	m.assets[id] = a
	return true, nil
}

// UpdateAssetOwnership mutates the ownership fields of one asset.
func (m *MemoryStore) UpdateAssetOwnership(id string, upd AssetOwnershipUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil
	}
	a.OwnershipStatus = upd.Status
	if upd.Reason != "" {
		a.OwnershipReason = upd.Reason
	}
	if upd.OwnerSocialAccountID != nil {
		a.OwnerSocialAccountID = upd.OwnerSocialAccountID
	}
	if upd.VerifiedAt != nil {
		a.VerifiedAt = upd.VerifiedAt
	}
	a.UpdatedAt = time.Now().UTC()
	m.assets[id] = a
	return nil
}

// UpsertClaim applies the claim arbitration rules under the store lock.
func (m *MemoryStore) UpsertClaim(u domain.ClaimUpdate) (domain.OwnershipClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := m.claims[u.Fingerprint]
	if !ok {
		claim := domain.NewClaim(u, now)
		m.claims[u.Fingerprint] = claim
		return claim, nil
	}
	claim, changed := domain.ApplyClaimUpdate(existing, u, now)
	if changed {
		m.claims[u.Fingerprint] = claim
	}
	return claim, nil
}

// GetClaim returns the claim row for a fingerprint.
func (m *MemoryStore) GetClaim(fingerprint string) (domain.OwnershipClaim, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claims[fingerprint]
	return c, ok, nil
}

// SaveSubmission stores or replaces a submission's ownership record.
func (m *MemoryStore) SaveSubmission(s domain.ContestSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[s.ID] = s
	return nil
}

// GetSubmission returns one submission by ID.
func (m *MemoryStore) GetSubmission(id string) (domain.ContestSubmission, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	return s, ok, nil
}

// ListSubmissionsByAsset returns submissions linked to an asset.
func (m *MemoryStore) ListSubmissionsByAsset(assetID string) ([]domain.ContestSubmission, error) {
	return m.filterSubmissions(func(s domain.ContestSubmission) bool {
		return assetID != "" && s.AssetID == assetID
	}), nil
}

// ListUnboundSubmissions returns a user's submissions without an owner bound.
func (m *MemoryStore) ListUnboundSubmissions(userID string, platform domain.Platform) ([]domain.ContestSubmission, error) {
	return m.filterSubmissions(func(s domain.ContestSubmission) bool {
		return s.UserID == userID && s.Platform == platform && s.MP4OwnerSocialAccountID == nil
	}), nil
}

func (m *MemoryStore) filterSubmissions(keep func(domain.ContestSubmission) bool) []domain.ContestSubmission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ContestSubmission, 0)
	for _, s := range m.submissions {
		if keep(s) {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res
}

// BindSubmissionOwner sets the owner account only where it is still unset.
func (m *MemoryStore) BindSubmissionOwner(id, socialAccountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok || s.MP4OwnerSocialAccountID != nil {
		return false, nil
	}
	s.MP4OwnerSocialAccountID = &socialAccountID
	s.UpdatedAt = time.Now().UTC()
	m.submissions[id] = s
	return true, nil
}

// UpdateSubmissionOwnership mutates the ownership fields of one submission.
func (m *MemoryStore) UpdateSubmissionOwnership(id string, upd SubmissionOwnershipUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil
	}
	s.MP4OwnershipStatus = upd.Status
	s.IsDisqualified = upd.Disqualified
	if upd.Reason != "" {
		s.MP4OwnershipReason = upd.Reason
	}
	if upd.OwnerSocialAccountID != nil {
		s.MP4OwnerSocialAccountID = upd.OwnerSocialAccountID
	}
	if upd.ResolvedAt != nil {
		s.OwnershipResolvedAt = upd.ResolvedAt
	}
	s.UpdatedAt = time.Now().UTC()
	m.submissions[id] = s
	return nil
}
