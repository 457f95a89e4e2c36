package peer

import (
	"net"
	"sync"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
)

// Table is a socket's peer table: keyed by TSI, guarded by an RW-lock,
// with the hot lookup path caching the last key/value pair so repeated
// traffic from the same peer skips the map lookup. A cache hit still
// takes the read lock; lookups are not lock-free. Grounded on eventsocket/server.go's mutex-guarded
// map-of-connections shape, adapted from net.Conn values to *Peer and
// from a plain Mutex to an RWMutex since reads (recvmsgv's per-peer
// scan) vastly outnumber writes (new-peer admission, expiry).
type Table struct {
	mu sync.RWMutex
	m  map[gsi.TSI]*Peer

	lastKey   gsi.TSI
	lastVal   *Peer
	lastValid bool
}

// NewTable creates an empty peer table.
func NewTable() *Table {
	return &Table{m: make(map[gsi.TSI]*Peer)}
}

// Get looks up a peer by TSI, consulting the single-entry cache first.
func (t *Table) Get(tsi gsi.TSI) (*Peer, bool) {
	t.mu.RLock()
	if t.lastValid && t.lastKey == tsi {
		p := t.lastVal
		t.mu.RUnlock()
		return p, true
	}
	p, ok := t.m[tsi]
	t.mu.RUnlock()
	if ok {
		t.mu.Lock()
		t.lastKey, t.lastVal, t.lastValid = tsi, p, true
		t.mu.Unlock()
	}
	return p, ok
}

// GetOrCreate returns the existing peer for tsi, or builds one with
// New and admits it.
func (t *Table) GetOrCreate(tsi gsi.TSI, sourceNLA, groupNLA net.IP, rxwCapacity uint32, now time.Time) (p *Peer, created bool) {
	if p, ok := t.Get(tsi); ok {
		return p, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.m[tsi]; ok {
		return p, false
	}
	p = New(tsi, sourceNLA, groupNLA, rxwCapacity, now)
	t.m[tsi] = p
	t.lastKey, t.lastVal, t.lastValid = tsi, p, true
	return p, true
}

// Delete removes a peer from the table, invalidating the lookup cache
// if it pointed at the evicted entry.
func (t *Table) Delete(tsi gsi.TSI) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, tsi)
	if t.lastValid && t.lastKey == tsi {
		t.lastValid = false
	}
}

// Len reports the number of peers currently tracked.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Range calls f for every peer in the table; iteration stops early if f
// returns false. Range holds the read lock for its duration, matching
// the "per-peer RXW mutates only under the receiver mutex" model
// spec.md §5 describes for recvmsgv's peer scan.
func (t *Table) Range(f func(*Peer) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.m {
		if !f(p) {
			return
		}
	}
}

// ExpireStale evicts and returns every peer silent for longer than
// peerExpiry (spec.md §4.6).
func (t *Table) ExpireStale(now time.Time, peerExpiry time.Duration) []*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []*Peer
	for tsi, p := range t.m {
		if p.Expired(now, peerExpiry) {
			expired = append(expired, p)
			delete(t.m, tsi)
			if t.lastValid && t.lastKey == tsi {
				t.lastValid = false
			}
		}
	}
	return expired
}
