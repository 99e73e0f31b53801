package scanner

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"hostscan/eventloop"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	reg := NewRegistry()
	results := NewResultQueue(8)
	d, err := NewDispatcher(reg, results, nil, DispatcherOptions{PoolSize: 4, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	return NewModule(reg, d, results, NewReaper(reg, 10*time.Millisecond, testLogger()), testLogger())
}

func TestUnloadDelayedWhileRecordsLinked(t *testing.T) {
	m := newTestModule(t)
	rec := m.Registry.Insert(netip.MustParseAddr("192.0.2.50"))
	if err := m.Registry.Acquire(rec); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := m.Unload(); !errors.Is(err, ErrUnloadBusy) {
		t.Fatalf("expected ErrUnloadBusy, got %v", err)
	}
	if m.IsQuiescent() {
		t.Fatal("module reported quiescent with a linked record")
	}

	_ = m.Registry.Release(rec)
	if err := m.Unload(); !errors.Is(err, ErrUnloadBusy) {
		t.Fatalf("unload succeeded before the record was swept: %v", err)
	}
	m.Registry.Sweep()
	if err := m.Unload(); err != nil {
		t.Fatalf("Unload after sweep: %v", err)
	}
	if err := m.Unload(); err != nil {
		t.Fatalf("second Unload: %v", err)
	}
}

func TestShutdownWaitsForIdle(t *testing.T) {
	m := newTestModule(t)
	rec := m.Registry.Insert(netip.MustParseAddr("192.0.2.51"))
	_ = m.Registry.Acquire(rec)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = m.Registry.Release(rec)
		m.Registry.Sweep()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !m.IsQuiescent() {
		t.Fatal("shutdown returned with records linked")
	}
}

func TestShutdownGivesUpWithContext(t *testing.T) {
	m := newTestModule(t)
	rec := m.Registry.Insert(netip.MustParseAddr("192.0.2.52"))
	_ = m.Registry.Acquire(rec)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOnLocalConnectScansAndReaps(t *testing.T) {
	m := newTestModule(t)
	release := make(chan struct{})
	m.Init(Hook{Name: "held", Probe: func(ctx context.Context, _ netip.Addr) (Finding, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return Finding{}, nil
	}})

	loop := eventloop.New(eventloop.Options{TickInterval: 5 * time.Millisecond, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	m.Load(loop)
	m.OnLocalConnect(netip.MustParseAddr("192.0.2.53"))
	waitFor(t, "record insert", func() bool { return m.Registry.Len() == 1 })

	// Reaper ticks while the worker holds its reference.
	time.Sleep(40 * time.Millisecond)
	if m.Registry.Len() != 1 {
		t.Fatal("record reaped while referenced")
	}

	close(release)
	waitFor(t, "reaper to reclaim record", func() bool { return m.Registry.Len() == 0 })

	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := m.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestConnectQueuedBeforeUnloadStartsNothing(t *testing.T) {
	m := newTestModule(t)
	m.Init(positiveHook("socks4", "Open SOCKS4 proxy on port 1080"))

	loop := eventloop.New(eventloop.Options{TickInterval: 5 * time.Millisecond, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	m.Load(loop)

	if err := m.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}

	// A connection accepted before the listener stopped is dispatched late.
	outcome := make(chan Outcome, 1)
	if err := loop.Post(func() { outcome <- m.Dispatcher.OnClientConnect(netip.MustParseAddr("192.0.2.99")) }); err != nil {
		t.Fatalf("Post: %v", err)
	}
	select {
	case out := <-outcome:
		if out != OutcomeClosed {
			t.Fatalf("outcome = %v, want closed", out)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch never ran")
	}
	if !m.IsQuiescent() {
		t.Fatalf("registry not quiescent after unload: len=%d", m.Registry.Len())
	}
}

func TestUnloadRunsOnLoop(t *testing.T) {
	m := newTestModule(t)
	loop := eventloop.New(eventloop.Options{TickInterval: 5 * time.Millisecond, Logger: testLogger()})
	m.Load(loop)

	// Loop not running yet: the unload waits for it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := m.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown on a parked loop = %v, want deadline exceeded", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	go func() { _ = loop.Run(runCtx) }()
	stop()
	<-loop.Done()

	if err := m.Unload(); err != nil {
		t.Fatalf("Unload after loop exit: %v", err)
	}
	if out := m.Dispatcher.OnClientConnect(netip.MustParseAddr("192.0.2.98")); out != OutcomeClosed {
		t.Fatalf("outcome = %v, want closed", out)
	}
}
