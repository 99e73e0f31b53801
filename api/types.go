package api

import "time"

// StatusResponse summarises the scan subsystem.
type StatusResponse struct {
	// Endpoint is where suspected proxies are asked to connect.
	Endpoint string `json:"endpoint" example:"203.0.113.5:1080" description:"Scan endpoint bound from set::scan::endpoint. Empty when none is configured, in which case every probe reports no finding."`
	// EndpointConfigured reports whether probes can run.
	EndpointConfigured bool `json:"endpoint_configured" example:"true"`
	// Hooks lists the registered probe hooks in dispatch order.
	Hooks []string `json:"hooks" example:"[\"socks4\",\"socks5\",\"http\"]"`
	// ActiveScans is the number of linked scan records.
	ActiveScans int `json:"active_scans" example:"3" description:"Records currently linked in the scan registry, including finished records the reaper has not swept yet."`
	// Quiescent is true when no scan record is linked and the module may unload.
	Quiescent bool `json:"quiescent" example:"false"`
	// QueuedResults counts positive findings waiting for the next loop tick.
	QueuedResults int `json:"queued_results" example:"0"`
	// Workers describes worker pool occupancy.
	Workers WorkerStats `json:"workers"`
	// Bans is the number of bans in the local table.
	Bans int `json:"bans" example:"12"`
}

// WorkerStats mirrors the probe worker pool counters.
type WorkerStats struct {
	Running  int `json:"running" example:"4"`
	Capacity int `json:"capacity" example:"256"`
	Free     int `json:"free" example:"252"`
}

// ScanRecord is one address under scan.
type ScanRecord struct {
	// Addr is the connecting client address.
	Addr string `json:"addr" example:"198.51.100.7"`
	// Refs is the number of probe workers still running against Addr.
	Refs int `json:"refs" example:"2" description:"Outstanding worker references. A record with zero references is reclaimed on the next reaper sweep."`
	// Since is when the record was inserted.
	Since time.Time `json:"since" format:"date-time" example:"2024-01-02T15:04:05Z"`
}

// Ban is one host ban in force.
type Ban struct {
	Mask     string    `json:"mask" example:"*@198.51.100.7"`
	Kind     string    `json:"kind" enums:"z" example:"z"`
	SetBy    string    `json:"set_by" example:"irc.example.net"`
	SetAt    time.Time `json:"set_at" format:"date-time" example:"2024-01-02T15:04:05Z"`
	ExpireAt time.Time `json:"expire_at" format:"date-time" example:"2024-01-03T15:04:05Z"`
	Reason   string    `json:"reason" example:"Open SOCKS4 proxy on port 1080"`
	Country  string    `json:"country,omitempty" example:"NL"`
}

// ExemptionsResponse lists the exempt prefixes.
type ExemptionsResponse struct {
	Prefixes []string `json:"prefixes" example:"[\"127.0.0.0/8\",\"10.0.0.0/8\"]"`
}

// ReplaceExemptionsRequest replaces the whole exemption list.
type ReplaceExemptionsRequest struct {
	// Prefixes are addresses or CIDR prefixes never scanned.
	Prefixes []string `json:"prefixes" binding:"required" example:"[\"127.0.0.1\",\"10.0.0.0/8\"]" description:"Full replacement list. Bare addresses become single-host prefixes; overlapping entries are merged."`
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// ErrorResponse provides a consistent structure for API error payloads.
type ErrorResponse struct {
	// Error is a human-readable explanation of why the request failed.
	Error string `json:"error" example:"unauthorized"`
}
