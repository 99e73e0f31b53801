package bans

import (
	"context"
	"log/slog"
	"time"

	"hostscan/logging"
)

// DefaultPropagateTimeout bounds a single propagator call.
const DefaultPropagateTimeout = 5 * time.Second

// Issuer applies a host ban. IssueHostBan is called on the core loop.
type Issuer interface {
	IssueHostBan(req Request)
}

// Propagator broadcasts a ban beyond the local server.
type Propagator interface {
	Name() string
	Propagate(ctx context.Context, req Request) error
}

// NetworkIssuer records bans in the local table and hands them to every
// propagator without waiting for them.
type NetworkIssuer struct {
	table       *Table
	propagators []Propagator
	timeout     time.Duration
	logger      *slog.Logger
}

// NewNetworkIssuer constructs an issuer writing to table.
func NewNetworkIssuer(table *Table, logger *slog.Logger, propagators ...Propagator) *NetworkIssuer {
	return &NetworkIssuer{
		table:       table,
		propagators: propagators,
		timeout:     DefaultPropagateTimeout,
		logger:      logging.For(logger, "bans"),
	}
}

// IssueHostBan adds req to the table and starts propagation. Propagation
// failures are logged and never retried.
func (n *NetworkIssuer) IssueHostBan(req Request) {
	added := n.table.Add(req)
	n.logger.Info("issued host ban",
		"mask", req.Mask(),
		"reason", req.Reason,
		"expire_at", req.ExpireAt,
		"country", req.Country,
		"new", added,
	)

	for _, p := range n.propagators {
		go func(p Propagator) {
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()
			if err := p.Propagate(ctx, req); err != nil {
				n.logger.Warn("ban propagation failed", "propagator", p.Name(), "mask", req.Mask(), "error", err)
			}
		}(p)
	}
}
