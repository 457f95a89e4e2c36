// Package txw implements the Transmit Window: the source's sequenced
// buffer of sent skbs plus its retransmit queue (spec.md §4.4).
//
// The window itself is grounded on cache/cache.go's map-based generation
// bookkeeping (adapted from a cookie-keyed current/previous pair to a
// sequence-keyed sliding ring); the retransmit queue's coalesce-by-key
// drain is grounded on saver/saver.go's channel-fed Task queue, adapted
// here to a plain mutex-guarded slice since repair requests must be
// peeked and dropped individually under the rate limiter rather than
// drained unconditionally by a worker goroutine.
package txw

import (
	"sync"
	"sync/atomic"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/skb"
)

// Stats are the TXW's cumulative counters (spec.md §4.4, §8 S6).
type Stats struct {
	NaksFailedRxwAdvanced uint64
}

// Entry is one outstanding repair request.
type Entry struct {
	// Sqn is the requested data sequence (IsParity == false) or the
	// representative sequence used to key a parity request (IsParity ==
	// true): the transmission group's first sequence.
	Sqn      uint32
	IsParity bool
	TgSqn    uint32 // transmission group number, valid when IsParity
	// Skb is the buffered packet to retransmit; nil for parity requests,
	// which carry no buffered packet.
	Skb *skb.Skb
}

// TXW is the transmit window for one socket.
type TXW struct {
	mu       sync.Mutex
	trail    uint32
	lead     uint32
	capacity uint32
	slots    map[uint32]*skb.Skb

	queue      []Entry
	queuedKeys map[uint64]bool

	stats Stats
}

// New creates an empty window of the given capacity (txw_sqns, or the
// equivalent derived from txw_secs × txw_max_rte / mtu at the caller).
func New(capacity uint32) *TXW {
	return &TXW{
		capacity:   capacity,
		slots:      make(map[uint32]*skb.Skb),
		queuedKeys: make(map[uint64]bool),
	}
}

// inWindow reports whether sequence lies in [trail, lead) under serial
// arithmetic. Callers must hold mu.
func (w *TXW) inWindow(sequence uint32) bool {
	return gsi.LessEqual(w.trail, sequence) && gsi.Less(sequence, w.lead)
}

// Add assigns s the next sequence number (lead), stores it, and advances
// lead. When the window exceeds capacity the oldest slot is dropped from
// the window; any retransmit-queue entry created from it earlier keeps
// its own reference and is unaffected (the reference implementation's
// refcounted skb plus "don't evict while referenced" rule collapses, under
// Go's garbage collector, to "the queue holds what it needs independently
// of the window").
func (w *TXW) Add(s *skb.Skb) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	sequence := w.lead
	s.Sequence = sequence
	w.slots[sequence] = s
	w.lead++
	if w.lead-w.trail > w.capacity {
		delete(w.slots, w.trail)
		w.trail++
	}
	return sequence
}

// Peek returns the skb at sequence, or ok==false if sequence lies outside
// [trail, lead) or was never assigned.
func (w *TXW) Peek(sequence uint32) (s *skb.Skb, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.inWindow(sequence) {
		return nil, false
	}
	s, ok = w.slots[sequence]
	return s, ok
}

// Trail and Lead report the window's current extents.
func (w *TXW) Trail() uint32 { w.mu.Lock(); defer w.mu.Unlock(); return w.trail }
func (w *TXW) Lead() uint32  { w.mu.Lock(); defer w.mu.Unlock(); return w.lead }

// Capacity reports the window's fixed sequence-number capacity (txw_sqns).
func (w *TXW) Capacity() uint32 { return w.capacity }

// Stats returns a snapshot of the window's counters.
func (w *TXW) Stats() Stats {
	return Stats{NaksFailedRxwAdvanced: atomic.LoadUint64(&w.stats.NaksFailedRxwAdvanced)}
}

func dedupeKey(sqn uint32, isParity bool) uint64 {
	key := uint64(sqn)
	if isParity {
		key |= 1 << 32
	}
	return key
}

// RetransmitPush enqueues a repair request. For parity requests the
// transmission group is sequence >> tgSqnShift and duplicate pushes
// within the same group are coalesced; for data requests duplicate pushes
// of the same sequence are coalesced. Requests outside the window are
// dropped silently and counted (spec.md §4.4 "Failure semantics").
func (w *TXW) RetransmitPush(sequence uint32, isParity bool, tgSqnShift uint) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.inWindow(sequence) {
		atomic.AddUint64(&w.stats.NaksFailedRxwAdvanced, 1)
		return
	}

	var key uint64
	entry := Entry{Sqn: sequence, IsParity: isParity}
	if isParity {
		entry.TgSqn = sequence >> tgSqnShift
		key = dedupeKey(entry.TgSqn, true)
	} else {
		entry.Skb = w.slots[sequence]
		key = dedupeKey(sequence, false)
	}
	if w.queuedKeys[key] {
		return
	}
	w.queuedKeys[key] = true
	w.queue = append(w.queue, entry)
}

// RetransmitTryPeek returns the head of the retransmit queue without
// removing it, for a rate limiter to approve or defer.
func (w *TXW) RetransmitTryPeek() (Entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Entry{}, false
	}
	return w.queue[0], true
}

// RetransmitRemoveHead drops the head of the retransmit queue, e.g. once
// the rate limiter has approved and the caller has sent it.
func (w *TXW) RetransmitRemoveHead() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return
	}
	head := w.queue[0]
	w.queue = w.queue[1:]
	var key uint64
	if head.IsParity {
		key = dedupeKey(head.TgSqn, true)
	} else {
		key = dedupeKey(head.Sqn, false)
	}
	delete(w.queuedKeys, key)
}

// RetransmitLen reports the number of queued repair requests.
func (w *TXW) RetransmitLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
