// Package connector defines C6, spec.md §4.6: the lifecycle contract
// every ingestion component shares (pull scheduler, HTTP/MQTT/UDP push
// receiver) and a connector group that fans a call out to a collection of
// weak-reference-like sub-connectors. Go has no weak references in the
// language the teacher's pack uses (no generational GC concern here
// either, since every live connector genuinely must be reachable to do
// its job) so the group instead holds plain strong references behind a
// mutex and treats "returned from Remove" as the expiry signal spec.md's
// "skipping expired ones" describes — functionally identical for a
// process whose sub-connectors are only ever removed by a controlled
// reload, never garbage collected out from under the group.
package connector

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is spec.md §3's SchedulerStatus, reused for every connector kind
// (not just C7 schedulers) since push receivers report the same shape.
type Status struct {
	ActiveSince          time.Time
	LastReload           time.Time
	LastDownload         time.Time
	DownloadsSinceReload int64
	NextDownload         time.Time
	ShortStatus          ShortStatus
}

// ShortStatus is spec.md §3's three-value enum.
type ShortStatus string

const (
	StatusIdle    ShortStatus = "IDLE"
	StatusOK      ShortStatus = "OK"
	StatusStopped ShortStatus = "STOPPED"
)

// Connector is the C6 contract. Stop must be idempotent and must not
// block on network I/O; Reload must re-read the station registry and
// re-instantiate per-station downloaders without losing in-flight work
// when possible.
type Connector interface {
	Start(ctx context.Context) error
	Stop() error
	Reload(ctx context.Context) error
	Status() Status
	Name() string
}

// Group is a Connector that forwards every call to a set of named
// sub-connectors, so one reload fans out to every live component — the
// "connector group" spec.md §4.6 describes.
type Group struct {
	mu      sync.RWMutex
	members map[string]Connector
	started time.Time
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{members: make(map[string]Connector)}
}

// Add registers a sub-connector under its own Name(). Safe to call while
// the group is running (a live reload adding a newly-configured station).
func (g *Group) Add(c Connector) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[c.Name()] = c
}

// Remove drops a sub-connector, stopping it first. This is the group's
// equivalent of a weak reference expiring: once Remove returns, the group
// no longer forwards calls to it.
func (g *Group) Remove(name string) error {
	g.mu.Lock()
	c, ok := g.members[name]
	delete(g.members, name)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Stop()
}

func (g *Group) snapshot() []Connector {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Connector, 0, len(g.members))
	for _, c := range g.members {
		out = append(out, c)
	}
	return out
}

// Start starts every member, collecting (not stopping on) the first
// error — one station's bad config must not block the others (spec.md
// §4.7's "one station failing must not prevent the scheduler from
// attempting the next").
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	g.started = time.Now()
	g.mu.Unlock()

	var firstErr error
	for _, c := range g.snapshot() {
		if err := c.Start(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("connector %s: %w", c.Name(), err)
		}
	}
	return firstErr
}

// Stop stops every member, regardless of individual failures, and is
// idempotent the way each member's own Stop is required to be.
func (g *Group) Stop() error {
	var firstErr error
	for _, c := range g.snapshot() {
		if err := c.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reload fans out to every member, the way spec.md §4.6 describes a
// top-level reload reissuing station-registry reads to every connector.
func (g *Group) Reload(ctx context.Context) error {
	var firstErr error
	for _, c := range g.snapshot() {
		if err := c.Reload(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status summarizes the group: OK if every member is OK, STOPPED if every
// member is stopped, IDLE otherwise.
func (g *Group) Status() Status {
	members := g.snapshot()
	st := Status{ActiveSince: g.started, ShortStatus: StatusStopped}
	allOK, anyRunning := true, false
	for _, c := range members {
		s := c.Status()
		if s.LastDownload.After(st.LastDownload) {
			st.LastDownload = s.LastDownload
		}
		st.DownloadsSinceReload += s.DownloadsSinceReload
		if s.ShortStatus != StatusStopped {
			anyRunning = true
		}
		if s.ShortStatus != StatusOK {
			allOK = false
		}
	}
	switch {
	case !anyRunning:
		st.ShortStatus = StatusStopped
	case allOK:
		st.ShortStatus = StatusOK
	default:
		st.ShortStatus = StatusIdle
	}
	return st
}

func (g *Group) Name() string { return "connector-group" }

var _ Connector = (*Group)(nil)
