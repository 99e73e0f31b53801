package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"hostscan/logging"
)

// Binder holds the scan endpoint bound from set::scan::endpoint. The last
// valid scan block wins; an invalid one leaves the previous value in place.
type Binder struct {
	mu       sync.RWMutex
	endpoint netip.AddrPort
	logger   *slog.Logger
}

// NewBinder constructs a Binder with no endpoint.
func NewBinder(logger *slog.Logger) *Binder {
	return &Binder{logger: logging.For(logger, "config")}
}

// Endpoint returns the bound endpoint. ok is false until an endpoint with a
// non-zero port has been bound.
func (b *Binder) Endpoint() (addr netip.AddrPort, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.endpoint, b.endpoint.Port() != 0
}

// LoadFile parses path and binds it. A read or syntax error is returned as
// err; invalid endpoint directives are returned as problems and logged.
func (b *Binder) LoadFile(path string) (problems []error, err error) {
	entries, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return b.Bind(entries), nil
}

// Bind walks every set { scan { endpoint ...; }; }; block. Problems are
// non-fatal: a scan block holding an invalid directive is dropped whole and
// the previously bound endpoint stays. A missing endpoint is only logged as a
// warning.
func (b *Binder) Bind(entries []*Entry) []error {
	var problems []error
	for _, set := range entries {
		if set.Name != "set" {
			continue
		}
		for _, scan := range set.Find("scan") {
			addr, found, err := scanEndpoint(scan)
			if err != nil {
				b.logger.Error("invalid scan endpoint, dropping scan block", "error", err)
				problems = append(problems, err)
				continue
			}
			if !found {
				continue
			}
			b.mu.Lock()
			b.endpoint = addr
			b.mu.Unlock()
		}
	}

	if addr, ok := b.Endpoint(); ok {
		b.logger.Info("scan endpoint configured", "endpoint", addr.String())
	} else {
		b.logger.Warn("no set::scan::endpoint configured")
	}
	return problems
}

// scanEndpoint returns the last endpoint of one scan block, or the first
// error in it.
func scanEndpoint(scan *Entry) (addr netip.AddrPort, found bool, err error) {
	for _, ep := range scan.Find("endpoint") {
		addr, err = parseEndpoint(ep)
		if err != nil {
			return netip.AddrPort{}, false, err
		}
		found = true
	}
	return addr, found, nil
}

func parseEndpoint(e *Entry) (netip.AddrPort, error) {
	fail := func(msg string) (netip.AddrPort, error) {
		return netip.AddrPort{}, &ConfigError{File: e.File, Line: e.Line, Msg: "set::scan::endpoint: " + msg}
	}
	if !e.HasValue || e.Value == "" {
		return fail("syntax [ip]:port")
	}

	host, port := splitHostPort(e.Value)
	if host == "" {
		return fail("illegal ip")
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fail("illegal ip")
	}
	if port == "" {
		return fail("missing/invalid port")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fail("missing/invalid port")
	}
	if n < 0 || n > 65535 {
		return fail(fmt.Sprintf("illegal port %d", n))
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(n)), nil
}

// splitHostPort accepts "[ip]:port", "ip:port" and a bare "[ip]".
func splitHostPort(s string) (host, port string) {
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", ""
		}
		host = s[1:end]
		rest := s[end+1:]
		if strings.HasPrefix(rest, ":") {
			port = rest[1:]
		}
		return host, port
	}
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}
