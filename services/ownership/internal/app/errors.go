package app

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound indicates the social account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAssetNotFound indicates the video asset does not exist.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrAlreadyVerified rejects a verification request for an account that
	// already passed.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrInvalidPlatform rejects an unsupported source platform.
	ErrInvalidPlatform = errors.New("invalid platform")
)

// UploadError signals that the object storage write failed. No metadata row
// was created.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// PersistenceError signals that the metadata write failed after a successful
// object write. The stored object has been deleted as compensation.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist asset failed: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ProviderError wraps a failed call to the external scraping provider.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("scraping provider: %v", e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }
