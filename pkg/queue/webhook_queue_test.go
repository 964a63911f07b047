package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestQueue(t *testing.T) *WebhookQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewWebhookQueue(WebhookQueueConfig{
		Addr:       mr.Addr(),
		Stream:     "test:webhooks",
		Group:      "test-group",
		Consumer:   "test-consumer",
		MaxRetries: 2,
		Block:      50 * time.Millisecond,
		ClaimIdle:  time.Minute,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEnqueueRequiresAccountAndSnapshot(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, Delivery{SnapshotID: "s_1"}); err == nil {
		t.Fatal("expected error for missing account id")
	}
	if _, err := q.Enqueue(ctx, Delivery{AccountID: "acc_1"}); err == nil {
		t.Fatal("expected error for missing snapshot id")
	}
	d, err := q.Enqueue(ctx, Delivery{AccountID: "acc_1", SnapshotID: "s_1", Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if d.ID == "" {
		t.Fatal("enqueue should assign a delivery id")
	}
}

func TestConsumerDeliversPayload(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Delivery
	q.Start(ctx, 1, func(_ context.Context, d Delivery) error {
		mu.Lock()
		got = append(got, d)
		mu.Unlock()
		return nil
	})

	// Group creation reads from "$", so enqueue after the consumer is up.
	time.Sleep(20 * time.Millisecond)
	sent, err := q.Enqueue(ctx, Delivery{
		AccountID:  "acc_1",
		SnapshotID: "s_abc",
		Payload:    []byte(`{"signature":"Code ABC123"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0].ID != sent.ID || got[0].AccountID != "acc_1" || got[0].SnapshotID != "s_abc" {
		t.Fatalf("unexpected delivery %+v", got[0])
	}
	if string(got[0].Payload) != `{"signature":"Code ABC123"}` {
		t.Fatalf("payload corrupted: %s", got[0].Payload)
	}
}

func TestConsumerRetriesUntilSuccess(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	q.Start(ctx, 1, func(_ context.Context, d Delivery) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("transient store failure")
		}
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	if _, err := q.Enqueue(ctx, Delivery{AccountID: "acc_1", SnapshotID: "s_1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}

func TestConsumerDropsAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	q.Start(ctx, 1, func(_ context.Context, d Delivery) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("permanent failure")
	})

	time.Sleep(20 * time.Millisecond)
	if _, err := q.Enqueue(ctx, Delivery{AccountID: "acc_1", SnapshotID: "s_1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// MaxRetries is 2, so exactly two handler invocations then the
	// delivery is dropped and never seen again.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("delivery retried past the limit: %d calls", calls)
	}
}
