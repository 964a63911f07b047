package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"clipclaim/pkg/domain"
)

const migrateLockID int64 = 48154815

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so overlapping service starts do not race each other.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&SocialAccountModel{},
			&RawVideoAssetModel{},
			&OwnershipClaimModel{},
			&ContestSubmissionModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveAccount stores or updates a social account.
func (s *GormStore) SaveAccount(a domain.SocialAccount) error {
	model := accountToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"profile_url", "username", "verification_code", "snapshot_id",
			"webhook_status", "verification_status", "verification_attempts",
			"profile_data", "updated_at",
		}),
	}).Create(&model).Error
}

// GetAccount returns an account by ID.
func (s *GormStore) GetAccount(id string) (domain.SocialAccount, bool, error) {
	var model SocialAccountModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.SocialAccount{}, false, nil
		}
		return domain.SocialAccount{}, false, err
	}
	return accountFromModel(model), true, nil
}

// GetAccountBySnapshotID resolves the external correlation id to an account.
func (s *GormStore) GetAccountBySnapshotID(snapshotID string) (domain.SocialAccount, bool, error) {
	if snapshotID == "" {
		return domain.SocialAccount{}, false, nil
	}
	var model SocialAccountModel
	if err := s.db.First(&model, "snapshot_id = ?", snapshotID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.SocialAccount{}, false, nil
		}
		return domain.SocialAccount{}, false, err
	}
	return accountFromModel(model), true, nil
}

// ListAccountsAwaitingResult returns accounts whose scrape job was accepted
// but has not delivered a result through either path yet.
func (s *GormStore) ListAccountsAwaitingResult(limit int) ([]domain.SocialAccount, error) {
	if limit <= 0 {
		return []domain.SocialAccount{}, nil
	}
	var models []SocialAccountModel
	if err := s.db.
		Where("webhook_status = ? AND verification_status = ? AND snapshot_id <> ''",
			string(domain.WebhookPending), string(domain.VerificationPending)).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	accounts := make([]domain.SocialAccount, 0, len(models))
	for _, m := range models {
		accounts = append(accounts, accountFromModel(m))
	}
	return accounts, nil
}

// ApplyVerificationResult commits a terminal outcome with a compare-and-swap
// guard on the current state: the UPDATE matches only while the account is
// still PENDING for this snapshot id, so a second delivery is a no-op.
func (s *GormStore) ApplyVerificationResult(id, snapshotID string, res VerificationResult) (bool, error) {
	updates := map[string]any{
		"verification_status": string(res.VerificationStatus),
		"webhook_status":      string(res.WebhookStatus),
		"updated_at":          time.Now().UTC(),
	}
	if res.VerificationStatus == domain.VerificationVerified {
		updates["verification_attempts"] = 0
	} else {
		updates["verification_attempts"] = gorm.Expr("verification_attempts + 1")
	}
	if res.ProfileData != nil {
		updates["profile_data"] = datatypes.JSON(res.ProfileData)
	}
	tx := s.db.Model(&SocialAccountModel{}).
		Where("id = ? AND verification_status = ? AND snapshot_id = ?",
			id, string(domain.VerificationPending), snapshotID).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// SaveAsset inserts an asset row. Creation only; ownership mutations go
// through BindAssetOwner and UpdateAssetOwnership.
func (s *GormStore) SaveAsset(a domain.RawVideoAsset) error {
	model := assetToModel(a)
	return s.db.Create(&model).Error
}

// GetAsset retrieves an asset.
func (s *GormStore) GetAsset(id string) (domain.RawVideoAsset, bool, error) {
	var model RawVideoAssetModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.RawVideoAsset{}, false, nil
		}
		return domain.RawVideoAsset{}, false, err
	}
	return assetFromModel(model), true, nil
}

// ListAssetsByFingerprint returns all assets claiming one video.
func (s *GormStore) ListAssetsByFingerprint(fp string) ([]domain.RawVideoAsset, error) {
	return s.listAssets("fingerprint = ?", fp)
}

// ListUnboundAssets returns a user's assets on a platform that have no owner
// account bound yet.
func (s *GormStore) ListUnboundAssets(userID string, platform domain.Platform) ([]domain.RawVideoAsset, error) {
	return s.listAssets("owner_user_id = ? AND platform = ? AND owner_social_account_id IS NULL", userID, string(platform))
}

// ListAssetsByAccount returns assets bound to an account, optionally filtered
// by ownership status.
func (s *GormStore) ListAssetsByAccount(socialAccountID string, statuses ...domain.OwnershipStatus) ([]domain.RawVideoAsset, error) {
	if len(statuses) == 0 {
		return s.listAssets("owner_social_account_id = ?", socialAccountID)
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return s.listAssets("owner_social_account_id = ? AND ownership_status IN ?", socialAccountID, values)
}

func (s *GormStore) listAssets(cond string, args ...any) ([]domain.RawVideoAsset, error) {
	var models []RawVideoAssetModel
	if err := s.db.Where(cond, args...).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	assets := make([]domain.RawVideoAsset, 0, len(models))
	for _, m := range models {
		assets = append(assets, assetFromModel(m))
	}
	return assets, nil
}

// BindAssetOwner sets the owner account only where it is still unset.
func (s *GormStore) BindAssetOwner(id, socialAccountID string) (bool, error) {
	tx := s.db.Model(&RawVideoAssetModel{}).
		Where("id = ? AND owner_social_account_id IS NULL", id).
		Updates(map[string]any{
			"owner_social_account_id": socialAccountID,
			"updated_at":              time.Now().UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// UpdateAssetOwnership mutates the ownership fields of one asset.
func (s *GormStore) UpdateAssetOwnership(id string, upd AssetOwnershipUpdate) error {
	updates := map[string]any{
		"ownership_status": string(upd.Status),
		"updated_at":       time.Now().UTC(),
	}
	if upd.Reason != "" {
		updates["ownership_reason"] = upd.Reason
	}
	if upd.OwnerSocialAccountID != nil {
		updates["owner_social_account_id"] = *upd.OwnerSocialAccountID
	}
	if upd.VerifiedAt != nil {
		updates["verified_at"] = upd.VerifiedAt.UTC()
	}
	return s.db.Model(&RawVideoAssetModel{}).Where("id = ?", id).Updates(updates).Error
}

// UpsertClaim runs the claim arbitration rules inside a transaction holding a
// row lock on the fingerprint, so concurrent attempts serialize instead of
// depending on arrival order.
func (s *GormStore) UpsertClaim(u domain.ClaimUpdate) (domain.OwnershipClaim, error) {
	var result domain.OwnershipClaim
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var model OwnershipClaimModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "fingerprint = ?", u.Fingerprint).Error
		if err == gorm.ErrRecordNotFound {
			claim := domain.NewClaim(u, now)
			created := claimToModel(claim)
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			result = claim
			return nil
		}
		if err != nil {
			return err
		}
		claim, changed := domain.ApplyClaimUpdate(claimFromModel(model), u, now)
		result = claim
		if !changed {
			return nil
		}
		updated := claimToModel(claim)
		return tx.Model(&OwnershipClaimModel{}).
			Where("fingerprint = ?", u.Fingerprint).
			Updates(map[string]any{
				"asset_id":          updated.AssetID,
				"user_id":           updated.UserID,
				"social_account_id": updated.SocialAccountID,
				"status":            updated.Status,
				"contested_count":   updated.ContestedCount,
				"last_contested_at": updated.LastContestedAt,
				"updated_at":        updated.UpdatedAt,
			}).Error
	})
	return result, err
}

// GetClaim returns the claim row for a fingerprint.
func (s *GormStore) GetClaim(fingerprint string) (domain.OwnershipClaim, bool, error) {
	var model OwnershipClaimModel
	if err := s.db.First(&model, "fingerprint = ?", fingerprint).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.OwnershipClaim{}, false, nil
		}
		return domain.OwnershipClaim{}, false, err
	}
	return claimFromModel(model), true, nil
}

// SaveSubmission stores or updates a submission's ownership record.
func (s *GormStore) SaveSubmission(sub domain.ContestSubmission) error {
	model := submissionToModel(sub)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"asset_id", "mp4_ownership_status", "mp4_owner_social_account_id",
			"mp4_ownership_reason", "is_disqualified", "ownership_resolved_at", "updated_at",
		}),
	}).Create(&model).Error
}

// GetSubmission returns one submission by ID.
func (s *GormStore) GetSubmission(id string) (domain.ContestSubmission, bool, error) {
	var model ContestSubmissionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ContestSubmission{}, false, nil
		}
		return domain.ContestSubmission{}, false, err
	}
	return submissionFromModel(model), true, nil
}

// ListSubmissionsByAsset returns submissions linked to an asset.
func (s *GormStore) ListSubmissionsByAsset(assetID string) ([]domain.ContestSubmission, error) {
	return s.listSubmissions("asset_id = ?", assetID)
}

// ListUnboundSubmissions returns a user's submissions on a platform without a
// bound owner account.
func (s *GormStore) ListUnboundSubmissions(userID string, platform domain.Platform) ([]domain.ContestSubmission, error) {
	return s.listSubmissions("user_id = ? AND platform = ? AND mp4_owner_social_account_id IS NULL", userID, string(platform))
}

func (s *GormStore) listSubmissions(cond string, args ...any) ([]domain.ContestSubmission, error) {
	var models []ContestSubmissionModel
	if err := s.db.Where(cond, args...).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	subs := make([]domain.ContestSubmission, 0, len(models))
	for _, m := range models {
		subs = append(subs, submissionFromModel(m))
	}
	return subs, nil
}

// BindSubmissionOwner sets the owner account only where it is still unset.
func (s *GormStore) BindSubmissionOwner(id, socialAccountID string) (bool, error) {
	tx := s.db.Model(&ContestSubmissionModel{}).
		Where("id = ? AND mp4_owner_social_account_id IS NULL", id).
		Updates(map[string]any{
			"mp4_owner_social_account_id": socialAccountID,
			"updated_at":                  time.Now().UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// UpdateSubmissionOwnership mutates the ownership fields of one submission.
func (s *GormStore) UpdateSubmissionOwnership(id string, upd SubmissionOwnershipUpdate) error {
	updates := map[string]any{
		"mp4_ownership_status": string(upd.Status),
		"is_disqualified":      upd.Disqualified,
		"updated_at":           time.Now().UTC(),
	}
	if upd.Reason != "" {
		updates["mp4_ownership_reason"] = upd.Reason
	}
	if upd.OwnerSocialAccountID != nil {
		updates["mp4_owner_social_account_id"] = *upd.OwnerSocialAccountID
	}
	if upd.ResolvedAt != nil {
		updates["ownership_resolved_at"] = upd.ResolvedAt.UTC()
	}
	return s.db.Model(&ContestSubmissionModel{}).Where("id = ?", id).Updates(updates).Error
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func accountToModel(a domain.SocialAccount) SocialAccountModel {
	return SocialAccountModel{
		ID:                   a.ID,
		UserID:               a.UserID,
		Platform:             string(a.Platform),
		ProfileURL:           a.ProfileURL,
		Username:             a.Username,
		VerificationCode:     nullableString(a.VerificationCode),
		SnapshotID:           a.SnapshotID,
		WebhookStatus:        string(a.WebhookStatus),
		VerificationStatus:   string(a.VerificationStatus),
		VerificationAttempts: a.VerificationAttempts,
		ProfileData:          datatypes.JSON(a.ProfileData),
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

func accountFromModel(m SocialAccountModel) domain.SocialAccount {
	return domain.SocialAccount{
		ID:                   m.ID,
		UserID:               m.UserID,
		Platform:             domain.Platform(m.Platform),
		ProfileURL:           m.ProfileURL,
		Username:             m.Username,
		VerificationCode:     stringValue(m.VerificationCode),
		SnapshotID:           m.SnapshotID,
		WebhookStatus:        domain.WebhookStatus(m.WebhookStatus),
		VerificationStatus:   domain.VerificationStatus(m.VerificationStatus),
		VerificationAttempts: m.VerificationAttempts,
		ProfileData:          []byte(m.ProfileData),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func assetToModel(a domain.RawVideoAsset) RawVideoAssetModel {
	return RawVideoAssetModel{
		ID:                   a.ID,
		OwnerUserID:          a.OwnerUserID,
		Platform:             string(a.Platform),
		SourceURL:            a.SourceURL,
		Fingerprint:          a.Fingerprint,
		StorageKey:           a.StorageKey,
		SizeBytes:            a.SizeBytes,
		OwnershipStatus:      string(a.OwnershipStatus),
		OwnerSocialAccountID: a.OwnerSocialAccountID,
		OwnershipReason:      a.OwnershipReason,
		VerifiedAt:           a.VerifiedAt,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

func assetFromModel(m RawVideoAssetModel) domain.RawVideoAsset {
	return domain.RawVideoAsset{
		ID:                   m.ID,
		OwnerUserID:          m.OwnerUserID,
		Platform:             domain.Platform(m.Platform),
		SourceURL:            m.SourceURL,
		Fingerprint:          m.Fingerprint,
		StorageKey:           m.StorageKey,
		SizeBytes:            m.SizeBytes,
		OwnershipStatus:      domain.OwnershipStatus(m.OwnershipStatus),
		OwnerSocialAccountID: m.OwnerSocialAccountID,
		OwnershipReason:      m.OwnershipReason,
		VerifiedAt:           m.VerifiedAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func claimToModel(c domain.OwnershipClaim) OwnershipClaimModel {
	return OwnershipClaimModel{
		Fingerprint:     c.Fingerprint,
		Platform:        string(c.Platform),
		AssetID:         c.AssetID,
		UserID:          c.UserID,
		SocialAccountID: c.SocialAccountID,
		Status:          string(c.Status),
		ContestedCount:  c.ContestedCount,
		LastContestedAt: c.LastContestedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func claimFromModel(m OwnershipClaimModel) domain.OwnershipClaim {
	return domain.OwnershipClaim{
		Fingerprint:     m.Fingerprint,
		Platform:        domain.Platform(m.Platform),
		AssetID:         m.AssetID,
		UserID:          m.UserID,
		SocialAccountID: m.SocialAccountID,
		Status:          domain.ClaimStatus(m.Status),
		ContestedCount:  m.ContestedCount,
		LastContestedAt: m.LastContestedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func submissionToModel(s domain.ContestSubmission) ContestSubmissionModel {
	return ContestSubmissionModel{
		ID:                      s.ID,
		ContestID:               s.ContestID,
		UserID:                  s.UserID,
		AssetID:                 s.AssetID,
		Platform:                string(s.Platform),
		SourceURL:               s.SourceURL,
		MP4OwnershipStatus:      string(s.MP4OwnershipStatus),
		MP4OwnerSocialAccountID: s.MP4OwnerSocialAccountID,
		MP4OwnershipReason:      s.MP4OwnershipReason,
		IsDisqualified:          s.IsDisqualified,
		OwnershipResolvedAt:     s.OwnershipResolvedAt,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

func submissionFromModel(m ContestSubmissionModel) domain.ContestSubmission {
	return domain.ContestSubmission{
		ID:                      m.ID,
		ContestID:               m.ContestID,
		UserID:                  m.UserID,
		AssetID:                 m.AssetID,
		Platform:                domain.Platform(m.Platform),
		SourceURL:               m.SourceURL,
		MP4OwnershipStatus:      domain.OwnershipStatus(m.MP4OwnershipStatus),
		MP4OwnerSocialAccountID: m.MP4OwnerSocialAccountID,
		MP4OwnershipReason:      m.MP4OwnershipReason,
		IsDisqualified:          m.IsDisqualified,
		OwnershipResolvedAt:     m.OwnershipResolvedAt,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}
