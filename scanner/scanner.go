// Package scanner implements the connection-time host scanning core: the
// registry of addresses under scan, the dispatcher that fans a new
// connection out to every registered probe hook, the queue that carries
// positive findings back to the core loop, and the reaper that reclaims
// finished records.
package scanner

import (
	"context"
	"net/netip"
)

// Finding is the outcome of one probe run.
type Finding struct {
	Positive bool
	Reason   string
}

// ProbeFunc runs one detection technique against addr. It must honor ctx.
// A returned error means "no finding"; it is logged and otherwise ignored.
type ProbeFunc func(ctx context.Context, addr netip.Addr) (Finding, error)

// Hook is a registered probe strategy.
type Hook struct {
	Name  string
	Probe ProbeFunc
}

// ScanResult carries one positive detection from a worker to the ban applier.
type ScanResult struct {
	Addr   netip.Addr
	Hook   string
	Reason string
}

// Outcome describes what OnClientConnect did. The connection itself is
// accepted in every case.
type Outcome int

const (
	// OutcomeStarted means a record was inserted and workers were dispatched.
	OutcomeStarted Outcome = iota
	// OutcomeExempt means the address is on the exemption list.
	OutcomeExempt
	// OutcomeDuplicate means a scan of the address is already in progress.
	OutcomeDuplicate
	// OutcomeClosed means the dispatcher was closed and no scan was started.
	OutcomeClosed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeExempt:
		return "exempt"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeClosed:
		return "closed"
	default:
		return "unknown"
	}
}
