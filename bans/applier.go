package bans

import (
	"log/slog"
	"net/netip"
	"time"

	"hostscan/logging"
	"hostscan/scanner"
)

// DefaultBanDuration is how long a scan ban stays in force.
const DefaultBanDuration = 24 * time.Hour

// Locator annotates an address with a country code.
type Locator interface {
	Country(addr netip.Addr) string
}

// ApplierOptions configures an Applier.
type ApplierOptions struct {
	ServerName string
	Duration   time.Duration
	Geo        Locator
	Logger     *slog.Logger
}

// Applier converts queued scan results into host bans. Tick must run on the
// core loop; every result queued before the call is applied exactly once.
type Applier struct {
	results    *scanner.ResultQueue
	issuer     Issuer
	serverName string
	duration   time.Duration
	geo        Locator
	now        func() time.Time
	logger     *slog.Logger
}

// NewApplier constructs an Applier draining results into issuer.
func NewApplier(results *scanner.ResultQueue, issuer Issuer, opts ApplierOptions) *Applier {
	if opts.Duration <= 0 {
		opts.Duration = DefaultBanDuration
	}
	return &Applier{
		results:    results,
		issuer:     issuer,
		serverName: opts.ServerName,
		duration:   opts.Duration,
		geo:        opts.Geo,
		now:        time.Now,
		logger:     logging.For(opts.Logger, "applier"),
	}
}

// Tick drains the result queue and returns how many bans were issued.
func (a *Applier) Tick() int {
	n := a.results.Drain(a.apply)
	if n > 0 {
		a.logger.Debug("applied scan results", "count", n)
	}
	return n
}

func (a *Applier) apply(r scanner.ScanResult) {
	now := a.now()
	req := Request{
		Kind:     KindZLine,
		User:     "*",
		Host:     r.Addr.String(),
		SetBy:    a.serverName,
		SetAt:    now,
		ExpireAt: now.Add(a.duration),
		Reason:   r.Reason,
	}
	if a.geo != nil {
		req.Country = a.geo.Country(r.Addr)
	}
	a.issuer.IssueHostBan(req)
}
