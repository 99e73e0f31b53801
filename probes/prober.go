// Package probes implements the open-proxy detection hooks run by scan
// workers. Each hook asks the connecting host, acting as a suspected proxy,
// to open a tunnel to the scan endpoint and reports a finding only when the
// endpoint's token comes back through it.
package probes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"hostscan/logging"
	"hostscan/scanner"
)

// DefaultDialTimeout bounds one connection attempt to a suspected proxy.
const DefaultDialTimeout = 5 * time.Second

// ErrNoEndpoint is returned by probes when no scan endpoint is configured.
var ErrNoEndpoint = errors.New("no scan endpoint configured")

// errTokenMismatch means the tunnel opened but did not reach our endpoint.
var errTokenMismatch = errors.New("tunnel did not return endpoint token")

// Config configures a Prober.
type Config struct {
	// Endpoint is where suspected proxies are asked to connect.
	Endpoint netip.AddrPort
	// Token is what the endpoint writes to every connection.
	Token       []byte
	SOCKSPorts  []int
	HTTPPorts   []int
	DialTimeout time.Duration
	Pacer       *Pacer
}

// Prober runs proxy checks against connecting hosts.
type Prober struct {
	cfg    Config
	dialer net.Dialer
	logger *slog.Logger
}

// New constructs a Prober.
func New(cfg Config, logger *slog.Logger) *Prober {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Prober{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
		logger: logging.For(logger, "probes"),
	}
}

// Hooks returns the probe hooks in the order they should be registered.
func (p *Prober) Hooks() []scanner.Hook {
	return []scanner.Hook{
		{Name: "socks4", Probe: p.SOCKS4},
		{Name: "socks5", Probe: p.SOCKS5},
		{Name: "http", Probe: p.HTTPConnect},
	}
}

// tunnelFunc opens a tunnel through the proxy at proxyAddr to the endpoint.
type tunnelFunc func(ctx context.Context, proxyAddr string) (io.ReadCloser, error)

// SOCKS4 checks addr for an open SOCKS4 proxy on each SOCKS port.
func (p *Prober) SOCKS4(ctx context.Context, addr netip.Addr) (scanner.Finding, error) {
	return p.scanPorts(ctx, addr, "SOCKS4", p.cfg.SOCKSPorts, p.socks4Tunnel)
}

// SOCKS5 checks addr for an open SOCKS5 proxy on each SOCKS port.
func (p *Prober) SOCKS5(ctx context.Context, addr netip.Addr) (scanner.Finding, error) {
	return p.scanPorts(ctx, addr, "SOCKS5", p.cfg.SOCKSPorts, p.socks5Tunnel)
}

// HTTPConnect checks addr for an HTTP proxy allowing CONNECT on each HTTP port.
func (p *Prober) HTTPConnect(ctx context.Context, addr netip.Addr) (scanner.Finding, error) {
	return p.scanPorts(ctx, addr, "HTTP", p.cfg.HTTPPorts, p.httpTunnel)
}

// scanPorts tries each port in order and stops at the first open proxy.
// The error of the last failed port is returned when none is open.
func (p *Prober) scanPorts(ctx context.Context, addr netip.Addr, proto string, ports []int, tunnel tunnelFunc) (scanner.Finding, error) {
	if !p.cfg.Endpoint.IsValid() || len(p.cfg.Token) == 0 {
		return scanner.Finding{}, ErrNoEndpoint
	}

	var lastErr error
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return scanner.Finding{}, err
		}
		proxyAddr := net.JoinHostPort(addr.String(), strconv.Itoa(port))
		err := p.check(ctx, proxyAddr, tunnel)
		if err == nil {
			return scanner.Finding{
				Positive: true,
				Reason:   fmt.Sprintf("Open %s proxy on port %d", proto, port),
			}, nil
		}
		p.logger.Debug("proxy check negative", "addr", addr, "proto", proto, "port", port, "state", dialState(err), "error", err)
		lastErr = err
	}
	return scanner.Finding{}, lastErr
}

// check opens the tunnel and verifies the endpoint token arrives through it.
func (p *Prober) check(ctx context.Context, proxyAddr string, tunnel tunnelFunc) error {
	conn, err := tunnel(ctx, proxyAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if dl, ok := conn.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = dl.SetReadDeadline(p.deadline(ctx))
	}
	got := make([]byte, len(p.cfg.Token))
	if _, err := io.ReadFull(conn, got); err != nil {
		return fmt.Errorf("read through tunnel: %w", err)
	}
	if !bytes.Equal(got, p.cfg.Token) {
		return errTokenMismatch
	}
	return nil
}

// dial connects to the suspected proxy, waiting on the pacer first.
func (p *Prober) dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := p.cfg.Pacer.Wait(ctx); err != nil {
		return nil, err
	}
	conn, err := p.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(p.deadline(ctx))
	return conn, nil
}

func (p *Prober) deadline(ctx context.Context) time.Time {
	dl := time.Now().Add(p.cfg.DialTimeout)
	if ctxDl, ok := ctx.Deadline(); ok && ctxDl.Before(dl) {
		return ctxDl
	}
	return dl
}
