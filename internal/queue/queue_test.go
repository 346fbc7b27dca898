package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

// Integration-style tests: run only if REDIS_ADDR env is set.

func testQueue(t *testing.T, minIdle time.Duration) *Queue {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}

	q := New(context.Background(), Options{
		Addr:           addr,
		Password:       os.Getenv("REDIS_PASSWORD"),
		Stream:         fmt.Sprintf("TaskRemindersTest-%d", time.Now().UnixNano()),
		RequeueMinIdle: minIdle,
	})
	if !q.Enabled() {
		t.Fatalf("queue did not connect to %s", addr)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestPublishConsumeAck(t *testing.T) {
	q := testQueue(t, 30*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := make(chan []byte, 1)
	go q.Consume(ctx, func(_ context.Context, body []byte) error {
		got <- body
		return nil
	})

	select {
	case body := <-got:
		if string(body) != `{"n":1}` {
			t.Fatalf("unexpected body %q", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message was not consumed")
	}
}

// A handler error leaves the entry pending; after the min-idle window it is
// handed out again.
func TestFailedHandlingIsRedelivered(t *testing.T) {
	q := testQueue(t, 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, []byte(`retry-me`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	attempts := make(chan int, 4)
	n := 0
	go q.Consume(ctx, func(_ context.Context, body []byte) error {
		n++
		attempts <- n
		if n == 1 {
			return errors.New("transient failure")
		}
		return nil
	})

	deadline := time.After(10 * time.Second)
	for want := 1; want <= 2; want++ {
		select {
		case got := <-attempts:
			if got != want {
				t.Fatalf("expected attempt %d, got %d", want, got)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for attempt %d", want)
		}
	}
}

// Poison messages are acknowledged and dropped, never redelivered.
func TestPoisonIsDroppedNotRedelivered(t *testing.T) {
	q := testQueue(t, 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, []byte(`garbage`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deliveries := make(chan struct{}, 4)
	go q.Consume(ctx, func(_ context.Context, body []byte) error {
		deliveries <- struct{}{}
		return fmt.Errorf("%w: not json", ErrPoison)
	})

	select {
	case <-deliveries:
	case <-time.After(5 * time.Second):
		t.Fatal("poison message never delivered")
	}

	// long enough to cover a full blocked-read cycle plus the reclaim window
	select {
	case <-deliveries:
		t.Fatal("poison message was redelivered")
	case <-time.After(readBlock + 2*time.Second):
	}
}

func TestDisabledQueueIsNoop(t *testing.T) {
	// no broker behind this port; queue must degrade, not crash
	q := New(context.Background(), Options{
		Addr:   "127.0.0.1:1",
		Stream: "TaskRemindersTest-disabled",
	})
	defer q.Close()

	if q.Enabled() {
		t.Fatal("queue must be disabled without a broker")
	}
	if err := q.Publish(context.Background(), []byte("x")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	// Consume must idle until cancelled, not spin or panic
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		q.Consume(ctx, func(context.Context, []byte) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("consume did not return after cancel")
	}
}
