package app

import (
	"context"
	"fmt"
	"time"

	"clipclaim/pkg/events"
	"clipclaim/pkg/scraper"
	"clipclaim/pkg/storage"
	"clipclaim/pkg/store"
)

// ScrapeProvider is the slice of the provider client the application uses.
// Satisfied by *scraper.Client and by test fakes.
type ScrapeProvider interface {
	Configured() bool
	Trigger(ctx context.Context, targetURL string) (string, error)
	Status(ctx context.Context, snapshotID string) (scraper.JobState, error)
	Fetch(ctx context.Context, snapshotID string) ([]byte, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	Objects        storage.ObjectStore

	ScraperBaseURL   string
	ScraperToken     string
	ScraperNotifyURL string
	Scraper          ScrapeProvider

	Events events.Publisher

	ReconcileBatchSize   int
	ReconcileConcurrency int
}

// App wires storage, persistence, the provider client, and the event
// publisher behind the ownership operations.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	provider      ScrapeProvider
	events        events.Publisher
	presignExpiry time.Duration
	batchSize     int
	batchLimit    int
}

// New constructs the application. Store, Objects, Scraper, and Events in the
// config override the defaults built from the connection settings.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	provider := cfg.Scraper
	if provider == nil {
		provider = scraper.NewClient(scraper.Config{
			BaseURL:   cfg.ScraperBaseURL,
			Token:     cfg.ScraperToken,
			NotifyURL: cfg.ScraperNotifyURL,
		})
	}

	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	batchSize := cfg.ReconcileBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	batchLimit := cfg.ReconcileConcurrency
	if batchLimit <= 0 {
		batchLimit = 8
	}

	return &App{
		store:         dataStore,
		objects:       objects,
		provider:      provider,
		events:        publisher,
		presignExpiry: 15 * time.Minute,
		batchSize:     batchSize,
		batchLimit:    batchLimit,
	}, nil
}
