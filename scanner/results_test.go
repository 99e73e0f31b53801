package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"
)

func TestResultQueueConcurrentSubmit(t *testing.T) {
	const producers, perProducer = 8, 25

	q := NewResultQueue(producers * perProducer)
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r := ScanResult{
					Addr:   netip.AddrFrom4([4]byte{198, 51, 100, byte(p)}),
					Hook:   fmt.Sprintf("hook-%d", i),
					Reason: "Open SOCKS4 proxy on port 1080",
				}
				if err := q.Submit(context.Background(), r); err != nil {
					t.Errorf("Submit: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	seen := map[string]int{}
	n := q.Drain(func(r ScanResult) {
		seen[r.Addr.String()+"/"+r.Hook]++
	})
	if n != producers*perProducer {
		t.Fatalf("drained %d results, want %d", n, producers*perProducer)
	}
	for key, count := range seen {
		if count != 1 {
			t.Fatalf("result %s delivered %d times", key, count)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue still holds %d results", q.Len())
	}
}

func TestResultQueueDrainOnlyTakesQueuedItems(t *testing.T) {
	q := NewResultQueue(4)
	ctx := context.Background()
	_ = q.Submit(ctx, ScanResult{Hook: "a"})
	_ = q.Submit(ctx, ScanResult{Hook: "b"})

	var order []string
	n := q.Drain(func(r ScanResult) {
		order = append(order, r.Hook)
		// Results submitted during a drain wait for the next one.
		_ = q.Submit(ctx, ScanResult{Hook: r.Hook + "-late"})
	})
	if n != 2 || len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("drain delivered %v (n=%d)", order, n)
	}
	if q.Len() != 2 {
		t.Fatalf("late results = %d, want 2", q.Len())
	}
}

func TestResultQueueSubmitAfterClose(t *testing.T) {
	q := NewResultQueue(1)
	_ = q.Submit(context.Background(), ScanResult{Hook: "kept"})
	q.Close()
	q.Close()

	if err := q.Submit(context.Background(), ScanResult{}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if n := q.Drain(func(ScanResult) {}); n != 1 {
		t.Fatalf("drained %d after close, want 1", n)
	}
}

func TestResultQueueSubmitBlocksUntilContextDone(t *testing.T) {
	q := NewResultQueue(1)
	_ = q.Submit(context.Background(), ScanResult{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Submit(ctx, ScanResult{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on full queue, got %v", err)
	}
}
