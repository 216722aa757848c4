package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Workers:     2,
		MaxAttempts: 3,
		RetryBase:   5 * time.Millisecond,
		QueueSize:   8,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPublishDelivers(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	var got atomic.Int32
	b.Subscribe("test.event", func(ctx context.Context, evt Event) error {
		if evt.Name != "test.event" {
			t.Errorf("event name = %q", evt.Name)
		}
		if evt.Payload.(string) != "payload" {
			t.Errorf("payload = %v", evt.Payload)
		}
		got.Add(1)
		return nil
	})

	b.Publish("test.event", "payload")
	waitFor(t, time.Second, func() bool { return got.Load() == 1 })
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	// Must not block or panic.
	b.Publish("nobody.listens", 42)
}

func TestRetryThenSuccess(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	var calls atomic.Int32
	b.Subscribe("flaky", func(ctx context.Context, evt Event) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	b.Publish("flaky", nil)
	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 3 })
}

func TestRetryExhaustionDrops(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	var calls atomic.Int32
	b.Subscribe("doomed", func(ctx context.Context, evt Event) error {
		calls.Add(1)
		return errors.New("permanent")
	})

	b.Publish("doomed", nil)
	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 3 })

	// No further deliveries after the attempt budget.
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls = %d, want exactly 3", n)
	}
}

func TestPanicIsolation(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	var healthy atomic.Int32
	b.Subscribe("shared", func(ctx context.Context, evt Event) error {
		panic("broken handler")
	})
	b.Subscribe("shared", func(ctx context.Context, evt Event) error {
		healthy.Add(1)
		return nil
	})

	b.Publish("shared", nil)
	waitFor(t, time.Second, func() bool { return healthy.Load() == 1 })

	// The bus still works after a panic.
	b.Publish("shared", nil)
	waitFor(t, time.Second, func() bool { return healthy.Load() == 2 })
}

func TestPublishNeverBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	b := New(cfg)
	defer b.Close()

	release := make(chan struct{})
	var done atomic.Int32
	b.Subscribe("slow", func(ctx context.Context, evt Event) error {
		<-release
		done.Add(1)
		return nil
	})

	// Flood well past the queue capacity; Publish must return promptly.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Publish("slow", i)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(release)
	waitFor(t, 2*time.Second, func() bool { return done.Load() == 50 })
}

func TestSubscriberIsolation(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	var other atomic.Int32
	b.Subscribe("a", func(ctx context.Context, evt Event) error {
		return errors.New("always fails")
	})
	b.Subscribe("b", func(ctx context.Context, evt Event) error {
		other.Add(1)
		return nil
	})

	b.Publish("a", nil)
	b.Publish("b", nil)
	waitFor(t, time.Second, func() bool { return other.Load() == 1 })
}

func TestCloseStopsDelivery(t *testing.T) {
	b := New(testConfig())

	var mu sync.Mutex
	count := 0
	b.Subscribe("evt", func(ctx context.Context, evt Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	b.Publish("evt", nil)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	b.Close()
	b.Publish("evt", nil) // dropped, not delivered

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("count = %d after close, want 1", count)
	}
}
