package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"clipclaim/pkg/domain"
	"clipclaim/pkg/scraper"
	"clipclaim/pkg/store"
)

// fakeObjects records object operations and injects failures.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes []string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.example/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return nil
}

// fakeProvider scripts the scraping provider.
type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	triggers   int
	triggerErr error
	states     map[string]scraper.JobState
	payloads   map[string][]byte
	statusErr  map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		configured: true,
		states:     make(map[string]scraper.JobState),
		payloads:   make(map[string][]byte),
		statusErr:  make(map[string]error),
	}
}

func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) Trigger(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	f.triggers++
	return "snap-" + strconv.Itoa(f.triggers), nil
}

func (f *fakeProvider) Status(_ context.Context, snapshotID string) (scraper.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[snapshotID]; err != nil {
		return "", err
	}
	if state, ok := f.states[snapshotID]; ok {
		return state, nil
	}
	return scraper.JobNotFound, nil
}

func (f *fakeProvider) Fetch(_ context.Context, snapshotID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.payloads[snapshotID]
	if !ok {
		return nil, errors.New("no payload scripted")
	}
	return payload, nil
}

type testEnv struct {
	app      *App
	store    *store.MemoryStore
	objects  *fakeObjects
	provider *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	memStore := store.NewMemoryStore()
	objects := newFakeObjects()
	provider := newFakeProvider()
	a, err := New(Config{
		Store:   memStore,
		Objects: objects,
		Scraper: provider,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &testEnv{app: a, store: memStore, objects: objects, provider: provider}
}

func (e *testEnv) uploadVideo(t *testing.T, userID, sourceURL string) domain.RawVideoAsset {
	t.Helper()
	asset, err := e.app.UploadVideo(context.Background(), UploadVideoInput{
		UserID:    userID,
		Platform:  "tiktok",
		SourceURL: sourceURL,
		Filename:  "clip.mp4",
		Size:      4,
	}, bytes.NewReader([]byte("mp4!")))
	if err != nil {
		t.Fatalf("upload video: %v", err)
	}
	return asset
}

func (e *testEnv) linkAccount(t *testing.T, userID, username string) domain.SocialAccount {
	t.Helper()
	account, err := e.app.LinkAccount(userID, "tiktok", "https://www.tiktok.com/@"+username, username)
	if err != nil {
		t.Fatalf("link account: %v", err)
	}
	return account
}

// requestVerification drives an account into PENDING with a scripted snapshot id.
func (e *testEnv) requestVerification(t *testing.T, accountID string) domain.SocialAccount {
	t.Helper()
	account, err := e.app.RequestVerification(context.Background(), accountID)
	if err != nil {
		t.Fatalf("request verification: %v", err)
	}
	if account.SnapshotID == "" || !strings.HasPrefix(account.SnapshotID, "snap-") {
		t.Fatalf("unexpected snapshot id %q", account.SnapshotID)
	}
	return account
}
