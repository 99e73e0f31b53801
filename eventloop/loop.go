// Package eventloop provides the single-threaded core context of the server.
//
// Everything that mutates server state which is not safe for concurrent use
// (ban tables, dispatch decisions, registry sweeps) runs on the goroutine
// executing Loop.Run. Other goroutines hand work over with Post or Call.
// Periodic work is registered with Every and evaluated once per tick, and
// OnTick functions run on every tick before timers.
package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"hostscan/logging"
)

// ErrLoopStopped is returned when work is handed to a loop that has exited.
var ErrLoopStopped = errors.New("event loop stopped")

// Defaults used when Options leaves a field zero.
const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultQueueSize    = 1024
)

// Options configures a Loop.
type Options struct {
	TickInterval time.Duration
	QueueSize    int
	Logger       *slog.Logger
}

// Loop is a cooperative single-consumer task queue with tick-driven timers.
type Loop struct {
	tasks  chan func()
	tick   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	timers  []*Timer
	tickFns []func()

	running atomic.Bool
	done    chan struct{}
}

// Timer is a periodic task registered with Every.
type Timer struct {
	name     string
	interval time.Duration
	fn       func()
	next     time.Time
	stopped  atomic.Bool
}

// Name returns the name the timer was registered with.
func (t *Timer) Name() string { return t.name }

// Stop prevents further runs of the timer. It is safe to call from any goroutine and more than once.
func (t *Timer) Stop() { t.stopped.Store(true) }

// New constructs a Loop. The loop does nothing until Run is called.
func New(opts Options) *Loop {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Loop{
		tasks:  make(chan func(), opts.QueueSize),
		tick:   opts.TickInterval,
		logger: logging.For(opts.Logger, "eventloop"),
		done:   make(chan struct{}),
	}
}

// Run executes posted tasks, tick functions and timers until ctx is cancelled.
// It must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("event loop already running")
	}
	defer close(l.done)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			l.run("task", fn)
		case now := <-ticker.C:
			l.onTick(now)
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post enqueues fn to run on the loop goroutine. It blocks only while the
// queue is full and returns ErrLoopStopped once the loop has exited.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case <-l.done:
		return ErrLoopStopped
	case l.tasks <- fn:
		return nil
	}
}

// Call runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	}
}

// Every registers fn to run on the loop goroutine roughly every interval.
// Timers are evaluated once per tick, so the effective resolution is the tick interval.
func (l *Loop) Every(name string, interval time.Duration, fn func()) *Timer {
	if interval < l.tick {
		interval = l.tick
	}
	t := &Timer{
		name:     name,
		interval: interval,
		fn:       fn,
		next:     time.Now().Add(interval),
	}
	l.mu.Lock()
	l.timers = append(l.timers, t)
	l.mu.Unlock()
	return t
}

// OnTick registers fn to run once per tick on the loop goroutine.
func (l *Loop) OnTick(fn func()) {
	l.mu.Lock()
	l.tickFns = append(l.tickFns, fn)
	l.mu.Unlock()
}

func (l *Loop) onTick(now time.Time) {
	l.mu.Lock()
	tickFns := append([]func(){}, l.tickFns...)
	live := l.timers[:0]
	var due []*Timer
	for _, t := range l.timers {
		if t.stopped.Load() {
			continue
		}
		live = append(live, t)
		if !now.Before(t.next) {
			t.next = now.Add(t.interval)
			due = append(due, t)
		}
	}
	for i := len(live); i < len(l.timers); i++ {
		l.timers[i] = nil
	}
	l.timers = live
	l.mu.Unlock()

	for _, fn := range tickFns {
		l.run("tick", fn)
	}
	for _, t := range due {
		if t.stopped.Load() {
			continue
		}
		l.run(t.name, t.fn)
	}
}

// run executes fn, keeping the loop alive if it panics.
func (l *Loop) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "task", name, "panic", r)
		}
	}()
	fn()
}
