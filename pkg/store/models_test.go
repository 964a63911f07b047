package store

import (
	"testing"

	"clipclaim/pkg/domain"
)

func TestAccountModelVerificationCodeNullability(t *testing.T) {
	account := domain.SocialAccount{
		ID:                 "acc-1",
		UserID:             "user-1",
		Platform:           domain.PlatformTikTok,
		ProfileURL:         "https://www.tiktok.com/@maker",
		Username:           "maker",
		VerificationStatus: domain.VerificationUnverified,
	}

	model := accountToModel(account)
	if model.VerificationCode != nil {
		t.Fatalf("unissued code stored as %q, want NULL", *model.VerificationCode)
	}
	if got := accountFromModel(model); got.VerificationCode != "" {
		t.Fatalf("round-trip of unissued code = %q, want empty", got.VerificationCode)
	}

	account.VerificationCode = "CLIP-ABCDEF1234"
	model = accountToModel(account)
	if model.VerificationCode == nil || *model.VerificationCode != "CLIP-ABCDEF1234" {
		t.Fatalf("issued code stored as %v, want CLIP-ABCDEF1234", model.VerificationCode)
	}
	if got := accountFromModel(model); got.VerificationCode != account.VerificationCode {
		t.Fatalf("round-trip of issued code = %q, want %q", got.VerificationCode, account.VerificationCode)
	}
}
