// Package geo annotates addresses with their country of registration.
package geo

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"hostscan/logging"
)

// Unknown is returned when no country can be determined.
const Unknown = "N/A"

// Locator looks addresses up in a GeoIP2 country database. A nil Locator,
// or one opened without a path, answers Unknown.
type Locator struct {
	reader *geoip2.Reader
	mu     sync.Mutex
	logger *slog.Logger
}

// Open loads the database at path. An empty path yields a disabled Locator.
func Open(path string, logger *slog.Logger) (*Locator, error) {
	l := &Locator{logger: logging.For(logger, "geo")}
	if path == "" {
		return l, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	l.reader = reader
	l.logger.Info("geoip enabled", "path", path)
	return l, nil
}

// Country returns the ISO country code for addr.
func (l *Locator) Country(addr netip.Addr) string {
	if l == nil || l.reader == nil {
		return Unknown
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	country, err := l.reader.Country(net.IP(addr.Unmap().AsSlice()))
	if err != nil {
		l.logger.Debug("geoip lookup failed", "addr", addr, "error", err)
		return Unknown
	}
	if country.Country.IsoCode == "" {
		return Unknown
	}
	return country.Country.IsoCode
}

// Close releases the database.
func (l *Locator) Close() error {
	if l == nil || l.reader == nil {
		return nil
	}
	return l.reader.Close()
}
