package exempt

import (
	"net/netip"
	"testing"
)

func TestParseAndContains(t *testing.T) {
	l, err := Parse([]string{"127.0.0.1", " 10.0.0.0/8 ", "", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.0.0.2", false},
		{"10.20.30.40", true},
		{"::ffff:10.1.1.1", true},
		{"2001:db8::1", true},
		{"198.51.100.7", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := l.Contains(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Fatalf("Contains(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, entry := range []string{"not-an-ip", "10.0.0.0/33"} {
		if _, err := Parse([]string{entry}); err == nil {
			t.Errorf("Parse(%q) succeeded", entry)
		}
	}
}

func TestReplace(t *testing.T) {
	l, err := Parse([]string{"192.0.2.0/24"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := l.Replace([]netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if l.Contains(netip.MustParseAddr("192.0.2.1")) {
		t.Fatal("old prefix still exempt")
	}
	if !l.Contains(netip.MustParseAddr("198.51.100.1")) {
		t.Fatal("new prefix not exempt")
	}
	if got := l.Prefixes(); len(got) != 1 || got[0].String() != "198.51.100.0/24" {
		t.Fatalf("Prefixes = %v", got)
	}
}

func TestNilListExemptsNothing(t *testing.T) {
	var l *List
	if l.Contains(netip.MustParseAddr("127.0.0.1")) {
		t.Fatal("nil list exempted an address")
	}
	if l.Prefixes() != nil {
		t.Fatal("nil list returned prefixes")
	}
}

func TestParseUnmapsMappedPrefixes(t *testing.T) {
	l, err := Parse([]string{"::ffff:10.0.0.0/104"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, addr := range []string{"10.9.8.7", "::ffff:10.9.8.7"} {
		if !l.Contains(netip.MustParseAddr(addr)) {
			t.Errorf("Contains(%s) = false", addr)
		}
	}
	if l.Contains(netip.MustParseAddr("11.0.0.1")) {
		t.Error("Contains(11.0.0.1) = true")
	}
	if got := l.Prefixes(); len(got) != 1 || got[0] != netip.MustParsePrefix("10.0.0.0/8") {
		t.Fatalf("Prefixes() = %v", got)
	}

	if _, err := Parse([]string{"::ffff:0.0.0.0/90"}); err == nil {
		t.Error("mapped prefix shorter than /96 accepted")
	}
}
