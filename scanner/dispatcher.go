package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"hostscan/logging"
)

// Defaults used when DispatcherOptions leaves a field zero.
const (
	DefaultPoolSize     = 256
	DefaultProbeTimeout = 10 * time.Second
)

// Exemptions reports whether an address must never be scanned.
type Exemptions interface {
	Contains(addr netip.Addr) bool
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// PoolSize bounds the number of concurrently running workers.
	PoolSize int
	// ProbeTimeout bounds a single hook run.
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// PoolStats describes worker pool occupancy.
type PoolStats struct {
	Running  int `json:"running"`
	Capacity int `json:"capacity"`
	Free     int `json:"free"`
}

// Dispatcher reacts to new connections by inserting a registry record and
// starting one worker per registered hook.
type Dispatcher struct {
	registry *Registry
	results  *ResultQueue
	exempt   Exemptions
	pool     *ants.Pool
	spawn    func(task func()) error
	timeout  time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu    sync.RWMutex
	hooks []Hook
}

// NewDispatcher constructs a Dispatcher. exempt may be nil.
func NewDispatcher(registry *Registry, results *ResultQueue, exempt Exemptions, opts DispatcherOptions) (*Dispatcher, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}

	// Non-blocking: a saturated pool fails the spawn instead of stalling the accept path.
	pool, err := ants.NewPool(opts.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: registry,
		results:  results,
		exempt:   exempt,
		pool:     pool,
		spawn:    pool.Submit,
		timeout:  opts.ProbeTimeout,
		logger:   logging.For(opts.Logger, "dispatcher"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Register appends hook to the ordered hook list.
func (d *Dispatcher) Register(hook Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hook)
}

// Hooks returns the registered hooks in registration order.
func (d *Dispatcher) Hooks() []Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Hook(nil), d.hooks...)
}

// OnClientConnect starts a scan of addr unless it is exempt or already under
// scan. It never blocks on a worker and never rejects the connection.
//
// The duplicate check is advisory: two concurrent calls for the same
// address may both start a scan.
func (d *Dispatcher) OnClientConnect(addr netip.Addr) Outcome {
	addr = addr.Unmap()
	if d.closed.Load() {
		d.logger.Debug("dispatcher closed, not scanning", "addr", addr)
		return OutcomeClosed
	}
	if d.exempt != nil && d.exempt.Contains(addr) {
		d.logger.Debug("address exempt from scanning", "addr", addr)
		return OutcomeExempt
	}
	if d.registry.Contains(addr) {
		d.logger.Debug("scan already in progress", "addr", addr)
		return OutcomeDuplicate
	}

	rec := d.registry.Insert(addr)
	for _, hook := range d.Hooks() {
		hook := hook // per-iteration copy; go directive lowered to 1.21 for the local toolchain
		if err := d.registry.Acquire(rec); err != nil {
			d.logger.Error("cannot reference scan record", "addr", addr, "hook", hook.Name, "error", err)
			break
		}
		if err := d.spawn(func() { d.work(rec, hook) }); err != nil {
			if relErr := d.registry.Release(rec); relErr != nil {
				d.logger.Error("release after failed spawn", "addr", addr, "hook", hook.Name, "error", relErr)
			}
			d.logger.Warn("could not start scan worker", "addr", addr, "hook", hook.Name, "error", err)
		}
	}
	return OutcomeStarted
}

// work runs one hook against rec and releases the reference it owns on
// every path, including a panicking probe.
func (d *Dispatcher) work(rec *Record, hook Hook) {
	addr := rec.Addr()
	defer func() {
		if err := d.registry.Release(rec); err != nil {
			d.logger.Error("release scan record", "addr", addr, "hook", hook.Name, "error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("probe panicked", "addr", addr, "hook", hook.Name, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	finding, err := hook.Probe(ctx, addr)
	if err != nil {
		d.logger.Debug("probe finished without finding", "addr", addr, "hook", hook.Name, "error", err)
		return
	}
	if !finding.Positive {
		return
	}

	// A stalled consumer must not pin the record past the probe deadline.
	submitCtx, submitCancel := context.WithTimeout(d.ctx, d.timeout)
	defer submitCancel()

	result := ScanResult{Addr: addr, Hook: hook.Name, Reason: finding.Reason}
	if err := d.results.Submit(submitCtx, result); err != nil {
		d.logger.Warn("dropping scan result", "addr", addr, "hook", hook.Name, "reason", finding.Reason, "error", err)
		return
	}
	d.logger.Info("probe reported positive", "addr", addr, "hook", hook.Name, "reason", finding.Reason)
}

// Stats returns the current worker pool occupancy.
func (d *Dispatcher) Stats() PoolStats {
	return PoolStats{
		Running:  d.pool.Running(),
		Capacity: d.pool.Cap(),
		Free:     d.pool.Free(),
	}
}

// Close cancels running probes and releases the worker pool. Workers still
// release their references as they unwind. OnClientConnect starts nothing
// after Close.
func (d *Dispatcher) Close() {
	d.closed.Store(true)
	d.cancel()
	d.pool.Release()
}
