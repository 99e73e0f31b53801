package scanner

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"

	"hostscan/eventloop"
	"hostscan/logging"
)

// ErrUnloadBusy is returned by Unload while scans are still in progress.
var ErrUnloadBusy = errors.New("scans still in progress")

// Module ties the scanning core to the server lifecycle: Init registers the
// probe hooks, Load starts the reaper on the core loop, and Unload refuses
// to tear down while any record is still linked.
type Module struct {
	Registry   *Registry
	Dispatcher *Dispatcher
	Results    *ResultQueue

	reaper *Reaper
	logger *slog.Logger

	mu        sync.Mutex
	loop      *eventloop.Loop
	reapTimer *eventloop.Timer
	unloaded  bool
}

// NewModule bundles the scanning components.
func NewModule(registry *Registry, dispatcher *Dispatcher, results *ResultQueue, reaper *Reaper, logger *slog.Logger) *Module {
	return &Module{
		Registry:   registry,
		Dispatcher: dispatcher,
		Results:    results,
		reaper:     reaper,
		logger:     logging.For(logger, "scan"),
	}
}

// Init registers the probe hooks in order.
func (m *Module) Init(hooks ...Hook) {
	for _, h := range hooks {
		m.Dispatcher.Register(h)
	}
	m.logger.Info("scan hooks registered", "hooks", len(hooks))
}

// Load starts the reaper on loop.
func (m *Module) Load(loop *eventloop.Loop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loop = loop
	m.reapTimer = loop.Every("scan_reaper", m.reaper.Interval(), func() { m.reaper.Tick() })
}

// OnLocalConnect is the connection hook. It moves the dispatch decision onto
// the core loop and returns immediately.
func (m *Module) OnLocalConnect(addr netip.Addr) {
	m.mu.Lock()
	loop := m.loop
	m.mu.Unlock()
	if loop == nil {
		m.logger.Warn("connection before scan module loaded", "addr", addr)
		return
	}
	if err := loop.Post(func() { m.Dispatcher.OnClientConnect(addr) }); err != nil {
		m.logger.Warn("cannot schedule scan", "addr", addr, "error", err)
	}
}

// IsQuiescent reports whether no scan record is linked.
func (m *Module) IsQuiescent() bool {
	return m.Registry.IsQuiescent()
}

// Unload releases the module if the registry is empty. Otherwise it returns
// ErrUnloadBusy and leaves the reaper running so the registry can drain.
// Once loaded, the check and teardown run on the core loop so no dispatch
// can slip in between them. It must not be called from the loop goroutine.
func (m *Module) Unload() error {
	return m.unloadOnLoop(context.Background())
}

// Shutdown calls Unload until it succeeds, waiting for the registry's idle
// signal between attempts instead of polling.
func (m *Module) Shutdown(ctx context.Context) error {
	for {
		err := m.unloadOnLoop(ctx)
		if !errors.Is(err, ErrUnloadBusy) {
			return err
		}
		select {
		case <-m.Registry.Idle():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Module) unloadOnLoop(ctx context.Context) error {
	m.mu.Lock()
	loop := m.loop
	m.mu.Unlock()
	if loop == nil {
		return m.unload()
	}

	var err error
	callErr := loop.Call(ctx, func() { err = m.unload() })
	switch {
	case callErr == nil:
		return err
	case errors.Is(callErr, eventloop.ErrLoopStopped):
		// Nothing dispatches any more.
		return m.unload()
	default:
		return callErr
	}
}

func (m *Module) unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unloaded {
		return nil
	}
	if !m.Registry.IsQuiescent() {
		m.logger.Warn("some scans still in progress, delaying unload", "records", m.Registry.Len())
		return ErrUnloadBusy
	}
	if m.reapTimer != nil {
		m.reapTimer.Stop()
	}
	m.Dispatcher.Close()
	m.Results.Close()
	m.unloaded = true
	m.logger.Info("scan module unloaded")
	return nil
}
