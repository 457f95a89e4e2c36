// Package peer holds the per-remote-source state PGM keeps alongside
// each Receive Window: network-layer addresses, FEC parameters, and
// cumulative statistics (spec.md §3 "Peer", §4.6).
//
// Grounded on snapshot/snapshot.go's Snapshot/Observed bitmask shape
// (adapted from "which netlink attribute arrived" to "which PGM counter
// moved") and on skb.Skb's Retain/Release pattern for the reference
// count spec.md's data model calls for.
package peer

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/go-test/deep"
	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/rxw"
)

// Stats are a peer's cumulative protocol counters.
type Stats struct {
	ODataReceived  uint64
	RDataReceived  uint64
	ParityReceived uint64
	BytesReceived  uint64
	NaksSent       uint64
	NcfsReceived   uint64
	SpmsReceived   uint64
	DupSpms        uint64
	RxwAdvanced    uint64
	APDUsDelivered uint64
	BytesDelivered uint64
}

// SignificantChange reports whether any counter besides the pure
// byte-volume counts (BytesReceived, BytesDelivered) moved between prev
// and the current stats, using
// go-test/deep the way the teacher's netlink.Compare and its tests do
// for field-level diffing, but expressed as a plain bool plus the diff
// for logging rather than a ChangeType enum -- PGM has no "early vs.
// late field" distinction to preserve from the TCP_INFO struct layout.
func (s Stats) SignificantChange(prev Stats) (changed bool, diff []string) {
	prev.BytesReceived, s.BytesReceived = 0, 0
	prev.BytesDelivered, s.BytesDelivered = 0, 0
	d := deep.Equal(prev, s)
	return d != nil, d
}

// Peer is one remote source's state, keyed by TSI in a socket's peer
// table.
type Peer struct {
	TSI gsi.TSI

	SourceNLA  net.IP
	GroupNLA   net.IP
	LastHopNLA net.IP

	RXW *rxw.RXW
	FEC rxw.FECConfig

	LastSPMSqn     uint32
	HasSPMSqn      bool
	HasPendingData bool

	CreatedAt    time.Time
	LastActivity time.Time

	Stats Stats

	refCount int32
}

// New creates a Peer with a fresh Receive Window of the given capacity.
func New(tsi gsi.TSI, sourceNLA, groupNLA net.IP, rxwCapacity uint32, now time.Time) *Peer {
	return &Peer{
		TSI:          tsi,
		SourceNLA:    sourceNLA,
		GroupNLA:     groupNLA,
		RXW:          rxw.New(rxwCapacity),
		CreatedAt:    now,
		LastActivity: now,
		refCount:     1,
	}
}

// Retain increments the peer's reference count (diagnostic parity with
// the C reference's arena model; Go's GC, not this counter, owns actual
// Peer lifetime).
func (p *Peer) Retain() *Peer {
	atomic.AddInt32(&p.refCount, 1)
	return p
}

// Release decrements the reference count and reports whether it reached
// zero.
func (p *Peer) Release() bool {
	return atomic.AddInt32(&p.refCount, -1) == 0
}

// Touch records activity, resetting the peer_expiry clock.
func (p *Peer) Touch(now time.Time) {
	p.LastActivity = now
}

// Expired reports whether the peer has been silent for longer than
// peerExpiry (spec.md §4.6: "a peer is declared dead after peer_expiry
// of silence").
func (p *Peer) Expired(now time.Time, peerExpiry time.Duration) bool {
	return now.Sub(p.LastActivity) > peerExpiry
}

// ObserveSPM records an SPM sighting, returning whether it duplicates or
// precedes the last-seen SPM sequence (spec.md §8 S4); either case counts
// toward DupSpms.
func (p *Peer) ObserveSPM(spmSqn uint32) (duplicate bool) {
	p.Stats.SpmsReceived++
	if p.HasSPMSqn && gsi.LessEqual(spmSqn, p.LastSPMSqn) {
		p.Stats.DupSpms++
		return true
	}
	p.LastSPMSqn = spmSqn
	p.HasSPMSqn = true
	return false
}
