// Package exempt holds the set of addresses that are never scanned.
package exempt

import (
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"

	"go4.org/netipx"
)

// List is a concurrency-safe set of exempt prefixes. Lookups never block
// a concurrent Replace.
type List struct {
	set atomic.Pointer[netipx.IPSet]
}

// Parse builds a List from addresses and CIDR prefixes. Empty entries are
// ignored.
func Parse(entries []string) (*List, error) {
	prefixes, err := ParsePrefixes(entries)
	if err != nil {
		return nil, err
	}
	l := &List{}
	if err := l.Replace(prefixes); err != nil {
		return nil, err
	}
	return l, nil
}

// ParsePrefixes converts addresses and CIDR prefixes to prefixes. A bare
// address becomes a single-host prefix.
func ParsePrefixes(entries []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid exempt prefix %q: %w", raw, err)
			}
			if p.Addr().Is4In6() {
				bits := p.Bits() - 96
				if bits < 0 {
					return nil, fmt.Errorf("invalid exempt prefix %q: mapped prefix shorter than /96", raw)
				}
				p = netip.PrefixFrom(p.Addr().Unmap(), bits)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid exempt address %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Replace swaps the whole set for prefixes.
func (l *List) Replace(prefixes []netip.Prefix) error {
	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		if !p.IsValid() {
			return fmt.Errorf("invalid exempt prefix %v", p)
		}
		b.AddPrefix(p)
	}
	set, err := b.IPSet()
	if err != nil {
		return fmt.Errorf("build exempt set: %w", err)
	}
	l.set.Store(set)
	return nil
}

// Contains reports whether addr is exempt. A nil or empty List exempts nothing.
func (l *List) Contains(addr netip.Addr) bool {
	if l == nil {
		return false
	}
	set := l.set.Load()
	if set == nil {
		return false
	}
	return set.Contains(addr.Unmap())
}

// Prefixes returns the minimal prefix list covering the set.
func (l *List) Prefixes() []netip.Prefix {
	if l == nil {
		return nil
	}
	set := l.set.Load()
	if set == nil {
		return nil
	}
	return set.Prefixes()
}
