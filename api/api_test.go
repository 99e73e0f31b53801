package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hostscan/bans"
	"hostscan/eventloop"
	"hostscan/exempt"
	"hostscan/scanner"
)

type stubEndpoint struct {
	addr netip.AddrPort
}

func (s stubEndpoint) Endpoint() (netip.AddrPort, bool) { return s.addr, s.addr.Port() != 0 }

type fixture struct {
	router *gin.Engine
	module *scanner.Module
	table  *bans.Table
	loop   *eventloop.Loop
	cancel context.CancelFunc
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	list, err := exempt.Parse([]string{"127.0.0.0/8"})
	if err != nil {
		t.Fatalf("exempt.Parse: %v", err)
	}

	reg := scanner.NewRegistry()
	results := scanner.NewResultQueue(8)
	d, err := scanner.NewDispatcher(reg, results, list, scanner.DispatcherOptions{PoolSize: 4, Logger: logger})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	module := scanner.NewModule(reg, d, results, scanner.NewReaper(reg, time.Hour, logger), logger)
	module.Init(scanner.Hook{Name: "socks4", Probe: func(context.Context, netip.Addr) (scanner.Finding, error) {
		return scanner.Finding{}, nil
	}})

	loop := eventloop.New(eventloop.Options{TickInterval: 10 * time.Millisecond, Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(cancel)

	table := bans.NewTable()
	cfg.Logger = logger
	router := NewRouter(Deps{
		Module:   module,
		Loop:     loop,
		Bans:     table,
		Exempt:   list,
		Endpoint: stubEndpoint{addr: netip.MustParseAddrPort("203.0.113.5:1080")},
	}, cfg)
	return &fixture{router: router, module: module, table: table, loop: loop, cancel: cancel}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"})
	rec := f.do(t, http.MethodGet, "/api/v1/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			if rec := f.do(t, http.MethodGet, "/api/v1/scans", nil, h); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStatusAndScans(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.module.Registry.Insert(netip.MustParseAddr("198.51.100.7"))
	_ = f.module.Registry.Acquire(rec)
	defer f.module.Registry.Release(rec)

	resp := f.do(t, http.MethodGet, "/api/v1/status", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", resp.Code, resp.Body.String())
	}
	status := decode[StatusResponse](t, resp)
	if status.Endpoint != "203.0.113.5:1080" || !status.EndpointConfigured {
		t.Errorf("endpoint = %q (%v)", status.Endpoint, status.EndpointConfigured)
	}
	if status.ActiveScans != 1 || status.Quiescent {
		t.Errorf("active=%d quiescent=%v", status.ActiveScans, status.Quiescent)
	}
	if len(status.Hooks) != 1 || status.Hooks[0] != "socks4" {
		t.Errorf("hooks = %v", status.Hooks)
	}
	if status.Workers.Capacity != 4 {
		t.Errorf("worker capacity = %d", status.Workers.Capacity)
	}

	scans := decode[[]ScanRecord](t, f.do(t, http.MethodGet, "/api/v1/scans", nil, nil))
	if len(scans) != 1 || scans[0].Addr != "198.51.100.7" || scans[0].Refs != 1 {
		t.Fatalf("scans = %+v", scans)
	}
}

func TestListBansReadsOnLoop(t *testing.T) {
	f := newFixture(t, Config{})
	now := time.Now()
	err := f.loop.Call(context.Background(), func() {
		f.table.Add(bans.Request{
			Kind: bans.KindZLine, User: "*", Host: "198.51.100.7", SetBy: "irc.example.net",
			SetAt: now, ExpireAt: now.Add(time.Hour), Reason: "Open SOCKS4 proxy on port 1080",
		})
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	list := decode[[]Ban](t, f.do(t, http.MethodGet, "/api/v1/bans", nil, nil))
	if len(list) != 1 || list[0].Mask != "*@198.51.100.7" || list[0].Reason != "Open SOCKS4 proxy on port 1080" {
		t.Fatalf("bans = %+v", list)
	}
}

func TestBansUnavailableWhenLoopStopped(t *testing.T) {
	f := newFixture(t, Config{})
	f.cancel()
	<-f.loop.Done()

	if rec := f.do(t, http.MethodGet, "/api/v1/bans", nil, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReplaceExemptions(t *testing.T) {
	f := newFixture(t, Config{})

	got := decode[ExemptionsResponse](t, f.do(t, http.MethodGet, "/api/v1/exemptions", nil, nil))
	if len(got.Prefixes) != 1 || got.Prefixes[0] != "127.0.0.0/8" {
		t.Fatalf("initial prefixes = %v", got.Prefixes)
	}

	rec := f.do(t, http.MethodPut, "/api/v1/exemptions", ReplaceExemptionsRequest{Prefixes: []string{"10.0.0.0/8", "192.0.2.1"}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got = decode[ExemptionsResponse](t, rec)
	if len(got.Prefixes) != 2 {
		t.Fatalf("prefixes = %v", got.Prefixes)
	}
	if out := f.module.Dispatcher.OnClientConnect(netip.MustParseAddr("10.1.2.3")); out != scanner.OutcomeExempt {
		t.Fatalf("outcome after replace = %v, want exempt", out)
	}
	if out := f.module.Dispatcher.OnClientConnect(netip.MustParseAddr("127.0.0.1")); out != scanner.OutcomeStarted {
		t.Fatalf("outcome for dropped prefix = %v, want started", out)
	}

	bad := f.do(t, http.MethodPut, "/api/v1/exemptions", ReplaceExemptionsRequest{Prefixes: []string{"10.0.0.0/33"}}, nil)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("bad prefix status = %d", bad.Code)
	}
}
