// Package queue buffers inbound scraper webhook deliveries in a Redis
// stream. The HTTP receiver only enqueues; a consumer group feeds each
// delivery into the verification ingest path, so a burst of provider pushes
// or a slow database never drops a result. Redelivery is safe because ingest
// itself is idempotent.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"clipclaim/internal/util"
)

// Delivery is one webhook push routed through the stream.
type Delivery struct {
	ID         string `json:"id"`
	AccountID  string `json:"accountId"`
	SnapshotID string `json:"snapshotId"`
	Payload    []byte `json:"payload"`
}

// WebhookQueue is a Redis-streams backed delivery buffer with a consumer
// group, stale-delivery claiming, and bounded retries.
type WebhookQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	attemptTTL   time.Duration
	once         sync.Once
}

// WebhookQueueConfig configures the delivery buffer.
type WebhookQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
}

// NewWebhookQueue connects to Redis and prepares the stream settings.
func NewWebhookQueue(cfg WebhookQueueConfig) (*WebhookQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "clipclaim:webhooks"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "ownership"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &WebhookQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		attemptTTL:   24 * time.Hour,
	}, nil
}

// Enqueue appends a webhook delivery to the stream.
func (q *WebhookQueue) Enqueue(ctx context.Context, d Delivery) (Delivery, error) {
	if strings.TrimSpace(d.AccountID) == "" {
		return Delivery{}, errors.New("accountId required")
	}
	if strings.TrimSpace(d.SnapshotID) == "" {
		return Delivery{}, errors.New("snapshotId required")
	}
	if d.ID == "" {
		d.ID = util.NewID()
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"delivery_id": d.ID,
			"account_id":  d.AccountID,
			"snapshot_id": d.SnapshotID,
			"payload":     string(d.Payload),
		},
	}).Err(); err != nil {
		return Delivery{}, err
	}
	return d, nil
}

// Start launches consumer goroutines feeding handler. Handler errors trigger
// redelivery up to the retry limit; exhausted deliveries are dropped with a
// log line, since the reconciler pull path will pick the account up later.
func (q *WebhookQueue) Start(ctx context.Context, concurrency int, handler func(context.Context, Delivery) error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *WebhookQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("webhook queue group create failed", "err", err)
		}
	})
}

func (q *WebhookQueue) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, Delivery) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimStale(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *WebhookQueue) claimStale(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *WebhookQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, Delivery) error) {
	delivery, ok := decodeDelivery(msg)
	if !ok {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	attempts, err := q.bumpAttempts(ctx, delivery.ID)
	if err != nil {
		// Attempt bookkeeping failed; process anyway, ingest is idempotent.
		attempts = 1
	}
	if err := handler(ctx, delivery); err == nil {
		q.ackAndDel(ctx, msg.ID)
		q.clearAttempts(ctx, delivery.ID)
		return
	} else if attempts >= q.maxRetries {
		slog.Warn("webhook delivery dropped after retries",
			"delivery_id", delivery.ID,
			"account_id", delivery.AccountID,
			"snapshot_id", delivery.SnapshotID,
			"attempts", attempts,
			"err", err,
		)
		q.ackAndDel(ctx, msg.ID)
		q.clearAttempts(ctx, delivery.ID)
		return
	}
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	_ = q.requeueAndAck(ctx, msg.ID, delivery)
}

func (q *WebhookQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *WebhookQueue) requeueAndAck(ctx context.Context, msgID string, d Delivery) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"delivery_id": d.ID,
			"account_id":  d.AccountID,
			"snapshot_id": d.SnapshotID,
			"payload":     string(d.Payload),
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *WebhookQueue) bumpAttempts(ctx context.Context, deliveryID string) (int, error) {
	key := q.attemptKey(deliveryID)
	n, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = q.client.Expire(ctx, key, q.attemptTTL).Err()
	return int(n), nil
}

func (q *WebhookQueue) clearAttempts(ctx context.Context, deliveryID string) {
	_ = q.client.Del(ctx, q.attemptKey(deliveryID)).Err()
}

func (q *WebhookQueue) attemptKey(deliveryID string) string {
	return fmt.Sprintf("delivery:%s:%s", q.stream, deliveryID)
}

func decodeDelivery(msg redis.XMessage) (Delivery, bool) {
	deliveryID, _ := msg.Values["delivery_id"].(string)
	accountID, _ := msg.Values["account_id"].(string)
	snapshotID, _ := msg.Values["snapshot_id"].(string)
	payload, _ := msg.Values["payload"].(string)
	if deliveryID == "" || accountID == "" || snapshotID == "" {
		return Delivery{}, false
	}
	return Delivery{
		ID:         deliveryID,
		AccountID:  accountID,
		SnapshotID: snapshotID,
		Payload:    []byte(payload),
	}, true
}

// Attempts reports the current retry counter for one delivery.
func (q *WebhookQueue) Attempts(ctx context.Context, deliveryID string) (int, error) {
	raw, err := q.client.Get(ctx, q.attemptKey(deliveryID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}
