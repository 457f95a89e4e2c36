// Package skb is the shared socket-buffer type referenced by the transmit
// and receive windows, the source and receiver engines, and the socket
// core (spec.md §3's "skb" entity).
package skb

import (
	"sync/atomic"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/wire"
)

// Skb is one PGM packet in flight: its parsed form, its raw wire bytes,
// and the bookkeeping windows/queues need to decide when it can be freed.
//
// The reference implementation arena-allocates skbs and frees the arena
// only at socket close, with an explicit refcount so a skb referenced by
// both a window slot and a pending-delivery queue outlives either holder
// alone. Go's garbage collector already gives us that lifetime guarantee
// for free; refCount here exists only so windows/queues can answer "is
// anyone else still holding this" the same way the reference implementation
// does, not to manage memory.
type Skb struct {
	TSI       gsi.TSI
	Sequence  uint32
	Received  time.Time
	Packet    *wire.Packet
	Buf       []byte
	refCount  int32
}

// New wraps a parsed packet and its backing bytes into a fresh Skb with
// one reference.
func New(tsi gsi.TSI, sequence uint32, packet *wire.Packet, buf []byte, received time.Time) *Skb {
	return &Skb{TSI: tsi, Sequence: sequence, Received: received, Packet: packet, Buf: buf, refCount: 1}
}

// Retain adds a reference, returning s for chaining at the call site.
func (s *Skb) Retain() *Skb {
	atomic.AddInt32(&s.refCount, 1)
	return s
}

// Release drops a reference, returning true when it was the last one.
func (s *Skb) Release() bool {
	return atomic.AddInt32(&s.refCount, -1) == 0
}

// RefCount reports the current reference count, for tests and diagnostics.
func (s *Skb) RefCount() int32 {
	return atomic.LoadInt32(&s.refCount)
}

// TSDU returns the packet's data payload, empty for non-data packet types.
func (s *Skb) TSDU() []byte {
	if s.Packet == nil || !s.Packet.Header.Type.HasData() {
		return nil
	}
	return s.Packet.Body
}
