package geo

import (
	"net/netip"
	"path/filepath"
	"testing"
)

func TestDisabledLocator(t *testing.T) {
	l, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	if got := l.Country(netip.MustParseAddr("198.51.100.7")); got != Unknown {
		t.Fatalf("Country = %q, want %q", got, Unknown)
	}

	var nilLocator *Locator
	if got := nilLocator.Country(netip.MustParseAddr("198.51.100.7")); got != Unknown {
		t.Fatalf("nil Country = %q", got)
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"), nil); err == nil {
		t.Fatal("expected error for missing database")
	}
}
