package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"clipclaim/internal/util"
	"clipclaim/pkg/domain"
	"clipclaim/pkg/events"
	"clipclaim/pkg/fingerprint"
	"clipclaim/pkg/storage"
)

// UploadVideoInput describes one upload request.
type UploadVideoInput struct {
	UserID    string
	Platform  string
	SourceURL string
	Filename  string
	Size      int64
	// OwnershipNotRequired marks submission paths where ownership is not
	// enforced; the asset skips claim registration entirely.
	OwnershipNotRequired bool
}

// UploadVideo stores the video object first, then the metadata row, then
// registers the ownership claim. A failed metadata write deletes the already
// stored object so neither an orphaned object nor a dangling row survives.
func (a *App) UploadVideo(ctx context.Context, in UploadVideoInput, r io.Reader) (domain.RawVideoAsset, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.RawVideoAsset{}, errors.New("user id required")
	}
	if in.Filename == "" {
		return domain.RawVideoAsset{}, errors.New("filename required")
	}
	if !domain.IsValidPlatform(in.Platform) {
		return domain.RawVideoAsset{}, ErrInvalidPlatform
	}
	if strings.TrimSpace(in.SourceURL) == "" {
		return domain.RawVideoAsset{}, errors.New("source url required")
	}
	platform := domain.NormalizePlatform(in.Platform)
	fp, _ := fingerprint.Fingerprint(platform, in.SourceURL)

	status := domain.OwnershipPending
	if in.OwnershipNotRequired {
		status = domain.OwnershipNotRequired
	} else if claim, ok, err := a.store.GetClaim(fp); err != nil {
		return domain.RawVideoAsset{}, fmt.Errorf("check claim: %w", err)
	} else if ok && claim.Status != domain.ClaimUnclaimed && claim.UserID != in.UserID {
		// Someone else already claims this video; the upload still goes
		// through, flagged as a dispute for the resolver to settle.
		status = domain.OwnershipContested
	}

	id := util.NewID()
	storageKey := buildStorageKey(id, in.Filename)
	now := time.Now().UTC()
	asset := domain.RawVideoAsset{
		ID:              id,
		OwnerUserID:     in.UserID,
		Platform:        platform,
		SourceURL:       strings.TrimSpace(in.SourceURL),
		Fingerprint:     fp,
		StorageKey:      storageKey,
		SizeBytes:       in.Size,
		OwnershipStatus: status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	contentType := storage.ContentTypeForFilename(in.Filename)
	if err := a.objects.Put(ctx, storageKey, r, in.Size, contentType); err != nil {
		return domain.RawVideoAsset{}, &UploadError{Err: err}
	}
	if err := a.store.SaveAsset(asset); err != nil {
		_ = a.objects.Delete(ctx, storageKey)
		return domain.RawVideoAsset{}, &PersistenceError{Err: err}
	}

	if claimStatus, ok := claimStatusFor(status); ok {
		if _, err := a.store.UpsertClaim(domain.ClaimUpdate{
			Fingerprint: fp,
			Platform:    platform,
			AssetID:     asset.ID,
			UserID:      asset.OwnerUserID,
			Status:      claimStatus,
		}); err != nil {
			slog.Warn("claim registration failed", "asset_id", asset.ID, "fingerprint", fp, "err", err)
		}
	}

	if err := a.events.Publish(ctx, events.TopicVideoUploaded, asset); err != nil {
		slog.Warn("publish video.uploaded failed", "asset_id", asset.ID, "err", err)
	}
	return asset, nil
}

// GetVideo retrieves one asset by ID.
func (a *App) GetVideo(id string) (domain.RawVideoAsset, bool, error) {
	return a.store.GetAsset(id)
}

// GetDownloadURL returns a pre-signed URL for the stored video object.
func (a *App) GetDownloadURL(ctx context.Context, id string) (string, error) {
	asset, ok, err := a.store.GetAsset(id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAssetNotFound
	}
	if strings.TrimSpace(asset.StorageKey) == "" {
		return "", fmt.Errorf("storage key missing")
	}
	return a.objects.PresignGet(ctx, asset.StorageKey, a.presignExpiry)
}

// claimStatusFor maps an asset's ownership status to the claim status it
// registers under, or false when no claim is recorded at all.
func claimStatusFor(status domain.OwnershipStatus) (domain.ClaimStatus, bool) {
	switch status {
	case domain.OwnershipPending:
		return domain.ClaimPending, true
	case domain.OwnershipVerified:
		return domain.ClaimClaimed, true
	case domain.OwnershipContested:
		return domain.ClaimContested, true
	default:
		return "", false
	}
}

func buildStorageKey(assetID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "video"
	}
	return path.Join("videos", assetID, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
