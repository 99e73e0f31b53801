package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T, tick time.Duration) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(Options{TickInterval: tick})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestPostRunsTasksInOrder(t *testing.T) {
	l, _ := startLoop(t, 10*time.Millisecond)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if err := l.Post(func() { got = append(got, i) }); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("Call: %v", err)
	}

	var snapshot []int
	_ = l.Call(context.Background(), func() { snapshot = append(snapshot, got...) })
	for i, v := range snapshot {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", snapshot)
		}
	}
	if len(snapshot) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(snapshot))
	}
}

func TestEveryFiresAndStops(t *testing.T) {
	l, _ := startLoop(t, 5*time.Millisecond)

	var runs atomic.Int32
	timer := l.Every("count", 10*time.Millisecond, func() { runs.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timer did not fire twice, runs=%d", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	timer.Stop()
	// Let any tick already in flight finish before sampling.
	_ = l.Call(context.Background(), func() {})
	stoppedAt := runs.Load()
	time.Sleep(60 * time.Millisecond)
	if runs.Load() != stoppedAt {
		t.Fatalf("timer kept firing after Stop: %d -> %d", stoppedAt, runs.Load())
	}
}

func TestOnTickRuns(t *testing.T) {
	l, _ := startLoop(t, 5*time.Millisecond)

	ticked := make(chan struct{}, 1)
	l.OnTick(func() {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("tick function never ran")
	}
}

func TestPanickingTaskDoesNotStopLoop(t *testing.T) {
	l, _ := startLoop(t, 10*time.Millisecond)

	if err := l.Post(func() { panic("boom") }); err != nil {
		t.Fatalf("Post: %v", err)
	}
	ran := false
	if err := l.Call(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Call after panic: %v", err)
	}
	if !ran {
		t.Fatal("expected task after panic to run")
	}
}

func TestPostAfterStop(t *testing.T) {
	l := New(Options{TickInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	cancel()
	<-l.Done()

	if err := l.Post(func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("expected ErrLoopStopped, got %v", err)
	}
	if err := l.Call(context.Background(), func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("expected ErrLoopStopped from Call, got %v", err)
	}
}
