package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"clipclaim/internal/ratelimit"
	"clipclaim/internal/util"
	"clipclaim/pkg/events"
	"clipclaim/pkg/queue"
	"clipclaim/services/ownership/internal/app"
	"clipclaim/services/ownership/internal/config"
	"clipclaim/services/ownership/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitURL != "" {
		rabbit, err := events.NewRabbitPublisher(events.RabbitConfig{
			URL:      cfg.RabbitURL,
			Exchange: cfg.RabbitExchange,
		})
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		defer rabbit.Close()
		publisher = rabbit
	} else {
		slog.Warn("rabbitURL not set, domain events disabled")
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:          cfg.DatabaseURL,
		MinioEndpoint:        cfg.MinioEndpoint,
		MinioAccessKey:       cfg.MinioAccessKey,
		MinioSecretKey:       cfg.MinioSecretKey,
		MinioBucket:          cfg.MinioBucket,
		MinioUseSSL:          cfg.MinioUseSSL,
		ScraperBaseURL:       cfg.ScraperBaseURL,
		ScraperToken:         cfg.ScraperToken,
		ScraperNotifyURL:     cfg.ScraperNotifyURL,
		Events:               publisher,
		ReconcileBatchSize:   cfg.ReconcileBatchSize,
		ReconcileConcurrency: cfg.ReconcileConcurrency,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	webhookQueue, err := queue.NewWebhookQueue(queue.WebhookQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.WebhookStream,
	})
	if err != nil {
		log.Fatalf("failed to init webhook queue: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	webhookQueue.Start(ctx, 2, func(ctx context.Context, d queue.Delivery) error {
		_, _, err := appCore.IngestResult(ctx, d.AccountID, d.SnapshotID, d.Payload)
		return err
	})

	var verifyLimiter *ratelimit.FixedWindowLimiter
	if cfg.VerifyRateLimit > 0 {
		window := time.Duration(cfg.VerifyRateWindowSeconds) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		verifyLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "clipclaim:verify", cfg.VerifyRateLimit, window)
		if err != nil {
			log.Fatalf("failed to init verify rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Queue:          webhookQueue,
		WebhookSecret:  cfg.WebhookSecret,
		MaxUploadBytes: cfg.MaxUploadBytes,
		VerifyLimiter:  verifyLimiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("ownership server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
