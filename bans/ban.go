// Package bans turns positive scan results into network host bans. Results
// are drained on the core loop, recorded in a loop-owned table and broadcast
// to the rest of the network by propagators running off the loop.
package bans

import (
	"sort"
	"time"
)

// KindZLine is the ban kind for an IP-level ban matched before registration.
const KindZLine = "z"

// Request is one host ban to be applied network-wide.
type Request struct {
	Kind     string    `json:"kind"`
	User     string    `json:"user"`
	Host     string    `json:"host"`
	SetBy    string    `json:"set_by"`
	SetAt    time.Time `json:"set_at"`
	ExpireAt time.Time `json:"expire_at"`
	Reason   string    `json:"reason"`
	Country  string    `json:"country,omitempty"`
}

// Mask returns the user@host mask the ban matches.
func (r Request) Mask() string {
	user := r.User
	if user == "" {
		user = "*"
	}
	return user + "@" + r.Host
}

// Table holds the bans currently in force. It is owned by the core loop and
// is not safe for concurrent use.
type Table struct {
	entries map[string]Request
}

// NewTable constructs an empty ban table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Request)}
}

// Add records req. Re-adding an existing mask replaces the entry, which
// refreshes its expiry and reason. It reports whether the mask was new.
func (t *Table) Add(req Request) bool {
	key := req.Kind + " " + req.Mask()
	_, exists := t.entries[key]
	t.entries[key] = req
	return !exists
}

// Len returns the number of bans in force.
func (t *Table) Len() int { return len(t.entries) }

// List returns every ban ordered by set time.
func (t *Table) List() []Request {
	out := make([]Request, 0, len(t.entries))
	for _, req := range t.entries {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SetAt.Equal(out[j].SetAt) {
			return out[i].Mask() < out[j].Mask()
		}
		return out[i].SetAt.Before(out[j].SetAt)
	})
	return out
}

// Expire removes every ban whose expiry is at or before now and returns how
// many were removed. A zero ExpireAt never expires.
func (t *Table) Expire(now time.Time) int {
	removed := 0
	for key, req := range t.entries {
		if !req.ExpireAt.IsZero() && !req.ExpireAt.After(now) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
