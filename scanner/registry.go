package scanner

import (
	"errors"
	"net/netip"
	"sort"
	"sync"
	"time"
)

var (
	// ErrReaped is returned when a reference is requested on a record a sweep has already unlinked.
	ErrReaped = errors.New("scan record already reaped")
	// ErrRefUnderflow is returned by Release when the record holds no references.
	ErrRefUnderflow = errors.New("scan record released more times than acquired")
)

// Record is the registry's tracking entry for one address under scan. A
// *Record is the stable handle returned by Insert and passed to workers.
//
// The address is immutable. refs and reaped are owned by mu; membership in
// the registry is owned by the registry's lock.
type Record struct {
	addr  netip.Addr
	since time.Time

	mu     sync.Mutex
	refs   int
	reaped bool
}

// Addr returns the address the record tracks.
func (r *Record) Addr() netip.Addr { return r.addr }

// Refs returns the current reference count.
func (r *Record) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// RecordInfo is a point-in-time copy of a record for status reporting.
type RecordInfo struct {
	Addr  netip.Addr
	Refs  int
	Since time.Time
}

// Registry is the set of addresses currently under scan.
//
// Lock ordering: Registry.mu is always taken before any Record.mu, and no
// record lock is ever held while acquiring Registry.mu. Acquire and Release
// only ever take the record lock.
type Registry struct {
	mu      sync.Mutex
	records map[*Record]struct{}
	byAddr  map[netip.Addr]int
	idle    chan struct{}
	now     func() time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	idle := make(chan struct{})
	close(idle)
	return &Registry{
		records: make(map[*Record]struct{}),
		byAddr:  make(map[netip.Addr]int),
		idle:    idle,
		now:     time.Now,
	}
}

// Contains reports whether any record for addr is currently linked.
// The answer is a point-in-time observation and may be stale on return.
func (g *Registry) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byAddr[addr] > 0
}

// Insert links a new record for addr with a reference count of zero.
func (g *Registry) Insert(addr netip.Addr) *Record {
	rec := &Record{addr: addr.Unmap(), since: g.now()}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.records) == 0 {
		g.idle = make(chan struct{})
	}
	g.records[rec] = struct{}{}
	g.byAddr[rec.addr]++
	return rec
}

// Acquire adds one reference to rec. It must be called before the worker
// owning the reference starts.
func (g *Registry) Acquire(rec *Record) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.reaped {
		return ErrReaped
	}
	rec.refs++
	return nil
}

// Release drops one reference from rec. The count never goes below zero.
func (g *Registry) Release(rec *Record) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.refs == 0 {
		return ErrRefUnderflow
	}
	rec.refs--
	return nil
}

// Sweep unlinks every record whose reference count is zero and returns how
// many were removed. Records still referenced are left for a later sweep.
// Sweep never waits on a worker: it only holds each record lock long enough
// to read the count.
func (g *Registry) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	swept := 0
	for rec := range g.records {
		rec.mu.Lock()
		if rec.refs == 0 {
			rec.reaped = true
			delete(g.records, rec)
			if g.byAddr[rec.addr]--; g.byAddr[rec.addr] <= 0 {
				delete(g.byAddr, rec.addr)
			}
			swept++
		}
		rec.mu.Unlock()
	}
	if swept > 0 && len(g.records) == 0 {
		close(g.idle)
	}
	return swept
}

// Len returns the number of linked records.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// IsQuiescent reports whether the registry is empty.
func (g *Registry) IsQuiescent() bool {
	return g.Len() == 0
}

// Idle returns a channel that is closed while the registry is empty. A
// channel obtained while records are linked is closed by the sweep that
// removes the last of them.
func (g *Registry) Idle() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idle
}

// Snapshot returns a copy of every linked record ordered by insertion time.
func (g *Registry) Snapshot() []RecordInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]RecordInfo, 0, len(g.records))
	for rec := range g.records {
		rec.mu.Lock()
		out = append(out, RecordInfo{Addr: rec.addr, Refs: rec.refs, Since: rec.since})
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].Addr.Less(out[j].Addr)
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}
