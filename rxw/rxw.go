// Package rxw implements the Receive Window: the central per-peer
// reassembly object with selective-NAK slot tracking and FEC block
// promotion (spec.md §4.5).
//
// Grounded on cache/cache.go's cycle-based eviction accounting (adapted
// from generation-keyed cookies to sequence-keyed slots) and on
// tcp/state.go's enum-with-String idiom for the slot state machine;
// semantics pinned by original_source/openpgm/pgm/rxw.c.
package rxw

import (
	"sync"
	"sync/atomic"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/pgmerr"
	"github.com/steve-o/openpgm-sub004/rs"
	"github.com/steve-o/openpgm-sub004/skb"
	"github.com/steve-o/openpgm-sub004/wire"
)

// Stats are the RXW's cumulative counters.
type Stats struct {
	RxwAdvanced uint64 // unrepaired slots marked LOST because trail advanced past them (spec.md §8 S6)
	DupSpms     uint64
}

// FECConfig mirrors the USE_FEC socket option (spec.md §6).
type FECConfig struct {
	BlockSize      uint8 // n
	GroupSize      uint8 // k
	Proactive      bool
	OnDemandParity bool
	VarPktLen      bool
}

// RXW is the receive window for one peer.
type RXW struct {
	mu                      sync.Mutex
	trail, lead             uint32
	commitTrail, commitLead uint32
	capacity                uint32

	slots map[uint32]*Slot

	backOff, waitNcf, waitData []uint32

	code        *rs.RS
	fec         FECConfig
	tgs         map[uint32]*tgState
	tgPacketLen map[uint32]int

	lastSpmSqn     uint32
	haveLastSpmSqn bool

	// Partial-APDU reassembly state, persisted across Readv calls: a
	// multi-fragment APDU whose later fragments haven't arrived yet must
	// keep its already-read fragment bytes around rather than lose them
	// when Readv returns empty-handed this round.
	partialAPDU      []byte
	partialAPDUFirst uint32
	partialAPDUNext  uint32 // next sequence expected to contribute a fragment
	havePartialAPDU  bool

	resetPending bool
	abortOnReset bool

	stats Stats
}

// New creates an empty receive window of the given capacity
// (rxw_sqns, or the equivalent derived from rxw_secs × rxw_max_rte / mtu).
func New(capacity uint32) *RXW {
	return &RXW{
		capacity:    capacity,
		slots:       make(map[uint32]*Slot),
		tgs:         make(map[uint32]*tgState),
		tgPacketLen: make(map[uint32]int),
	}
}

// SetAbortOnReset records the abort-on-reset flag. Nothing in the window
// reads it: a LOST slot raises a pending reset for TakeReset whatever its
// value, and there is no separate way to poll for the loss.
func (w *RXW) SetAbortOnReset(abort bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.abortOnReset = abort
}

// ConfigureFEC installs (or refreshes) the Reed-Solomon context used for
// block promotion (update_fec). VarPktLen is rejected: spec.md §9's open
// question about OPT_PARITY combined with OPT_VAR_PKTLEN is resolved by
// requiring uniform packet lengths within a transmission group whenever
// FEC is active.
func (w *RXW) ConfigureFEC(cfg FECConfig, code *rs.RS) error {
	if cfg.VarPktLen {
		return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_VAR_PKTLEN is not supported with FEC active")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fec = cfg
	w.code = code
	w.tgs = make(map[uint32]*tgState)
	w.tgPacketLen = make(map[uint32]int)
	return nil
}

// Trail, Lead, CommitTrail, and CommitLead report the window's current
// extents (spec.md §3 invariant: trail ≤ commit_trail ≤ commit_lead ≤ lead).
func (w *RXW) Trail() uint32       { w.mu.Lock(); defer w.mu.Unlock(); return w.trail }
func (w *RXW) Lead() uint32        { w.mu.Lock(); defer w.mu.Unlock(); return w.lead }
func (w *RXW) CommitTrail() uint32 { w.mu.Lock(); defer w.mu.Unlock(); return w.commitTrail }
func (w *RXW) CommitLead() uint32  { w.mu.Lock(); defer w.mu.Unlock(); return w.commitLead }

// Stats returns a snapshot of the window's counters.
func (w *RXW) Stats() Stats {
	return Stats{
		RxwAdvanced: atomic.LoadUint64(&w.stats.RxwAdvanced),
		DupSpms:     atomic.LoadUint64(&w.stats.DupSpms),
	}
}

// TakeReset reports and clears a pending RESET: the reference
// implementation delivers unrecoverable loss as RESET exactly once, then
// resumes (spec.md §4.5, §8 invariant and S5).
func (w *RXW) TakeReset() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.resetPending {
		return false
	}
	w.resetPending = false
	return true
}

func (w *RXW) groupSize() uint32 {
	if w.code == nil {
		return 0
	}
	return uint32(w.code.K)
}

// growLocked creates BACK_OFF slots for every sequence in [lead, newLead),
// then advances lead. Callers must hold w.mu.
func (w *RXW) growLocked(newLead uint32, now, rbExpiry int64) {
	for gsi.Less(w.lead, newLead) {
		if dist := gsi.Distance(w.trail, w.lead); dist < 0 || uint32(dist) >= w.capacity {
			break // would outrun the window's capacity; caller's sequence was out of bounds
		}
		seq := w.lead
		w.slots[seq] = &Slot{Sequence: seq, State: BackOff, Expiry: rbExpiry, TgSqn: w.tgOf(seq)}
		w.backOff = append(w.backOff, seq)
		w.lead++
	}
}

func (w *RXW) tgOf(sequence uint32) uint32 {
	k := w.groupSize()
	if k == 0 {
		return 0
	}
	return sequence / k
}

// Update learns advertised transmit-window extents from an SPM
// (spec.md §4.5).
func (w *RXW) Update(txwLead, txwTrail uint32, now, rbExpiry int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gsi.Less(w.lead, txwLead) {
		w.growLocked(txwLead, now, rbExpiry)
	}
	if gsi.Less(w.trail, txwTrail) {
		w.advanceTrailLocked(txwTrail)
	}
}

// advanceTrailLocked marks unrepaired slots LOST (evicting them
// immediately, since they will never be delivered) as the live window's
// trail passes them. Slots that already hold data -- delivered or not --
// are left alone; RemoveCommit is the only thing that evicts those, once
// Readv has moved commitLead past them, preserving the trail ≤
// commit_trail ≤ commit_lead ≤ lead invariant. Callers must hold w.mu.
func (w *RXW) advanceTrailLocked(newTrail uint32) {
	for gsi.Less(w.trail, newTrail) {
		seq := w.trail
		if slot, ok := w.slots[seq]; ok {
			switch slot.State {
			case HaveData, HaveParity, CommitData, CommitParity:
				// still holds data; leave for Readv/RemoveCommit
			default:
				w.removeFromQueueLocked(slot)
				slot.State = Lost
				w.resetPending = true
				atomic.AddUint64(&w.stats.RxwAdvanced, 1)
				metrics.NaksFailedRxwAdvancedTotal.Inc()
				delete(w.slots, seq)
			}
		}
		w.trail++
	}
}

func removeSeq(q []uint32, seq uint32) []uint32 {
	for i, s := range q {
		if s == seq {
			return append(q[:i], q[i+1:]...)
		}
	}
	return q
}

func (w *RXW) removeFromQueueLocked(slot *Slot) {
	switch slot.State {
	case BackOff:
		w.backOff = removeSeq(w.backOff, slot.Sequence)
	case WaitNcf:
		w.waitNcf = removeSeq(w.waitNcf, slot.Sequence)
	case WaitData:
		w.waitData = removeSeq(w.waitData, slot.Sequence)
	}
}

func (w *RXW) enqueueLocked(slot *Slot) {
	switch slot.State {
	case BackOff:
		w.backOff = append(w.backOff, slot.Sequence)
	case WaitNcf:
		w.waitNcf = append(w.waitNcf, slot.Sequence)
	case WaitData:
		w.waitData = append(w.waitData, slot.Sequence)
	}
}

// Add inserts a received data or repair skb (spec.md §4.5).
func (w *RXW) Add(s *skb.Skb, now, rbExpiry int64) AddResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	sequence := s.Sequence
	dist := gsi.Distance(w.trail, sequence)
	if dist < 0 || uint32(dist) >= w.capacity {
		return Bounds
	}

	origLead := w.lead
	if gsi.LessEqual(w.lead, sequence) {
		w.growLocked(sequence+1, now, rbExpiry)
	}

	parityOffset := parityOffsetOf(s)
	tg := w.tgOf(sequence)
	offset := int(sequence % groupSizeOrOne(w.groupSize()))
	if parityOffset != nil {
		offset = int(*parityOffset)
		// A parity packet's own Sequence lives in the same flat space as
		// data sequences and does not divide evenly into its
		// transmission group; OPT_PARITY_GRP carries the real group
		// number instead.
		if grp := parityGrpOf(s); grp != nil {
			tg = *grp
		}
	}

	slot, exists := w.slots[sequence]
	if !exists {
		slot = &Slot{Sequence: sequence, State: Placeholder, TgSqn: tg}
		w.slots[sequence] = slot
	}
	slot.TgSqn = tg
	switch slot.State {
	case HaveData, HaveParity, CommitData, CommitParity:
		return Duplicate
	}

	if w.code != nil {
		// The RS matrix operates on TSDU bytes, not raw wire bytes: a
		// plain ODATA packet carries no options while its group's
		// parity packets always carry OPT_PARITY_GRP/OPT_PARITY_CUR,
		// so s.Buf lengths legitimately differ even though the RS
		// code needs every row the same width.
		plen := len(s.TSDU())
		if prevLen, ok := w.tgPacketLen[tg]; ok && prevLen != plen {
			return Malformed
		}
		w.tgPacketLen[tg] = plen
	}

	w.removeFromQueueLocked(slot)
	slot.Skb = s
	if parityOffset != nil {
		slot.State = HaveParity
	} else {
		slot.State = HaveData
	}

	result := Inserted
	if sequence == origLead {
		result = Appended
	}

	if w.code != nil {
		w.registerFECLocked(tg, offset, s)
	}
	return result
}

func groupSizeOrOne(k uint32) uint32 {
	if k == 0 {
		return 1
	}
	return k
}

// Confirm transitions a slot to WAIT_DATA on receipt of an NCF
// (spec.md §4.5).
func (w *RXW) Confirm(sequence uint32, now, rdataExpiry, rbExpiry int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gsi.LessEqual(w.lead, sequence) {
		w.growLocked(sequence+1, now, rbExpiry)
	}
	slot, ok := w.slots[sequence]
	if !ok || (slot.State != Placeholder && !slot.State.inTimerQueue()) {
		return false
	}
	w.removeFromQueueLocked(slot)
	slot.State = WaitData
	slot.Expiry = rdataExpiry
	w.enqueueLocked(slot)
	return true
}

// SetState moves a slot directly to newState, lifting/dropping it between
// the three timer queues as needed (spec.md §4.5's "state" operation).
func (w *RXW) SetState(sequence uint32, newState SlotState, expiry int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	slot, ok := w.slots[sequence]
	if !ok {
		return false
	}
	w.removeFromQueueLocked(slot)
	slot.State = newState
	slot.Expiry = expiry
	if newState == Lost {
		w.resetPending = true
	}
	w.enqueueLocked(slot)
	return true
}

// Lost is the explicit loss upcall once retry limits are exhausted.
func (w *RXW) Lost(sequence uint32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	slot, ok := w.slots[sequence]
	if !ok {
		return false
	}
	w.removeFromQueueLocked(slot)
	slot.State = Lost
	w.resetPending = true
	return true
}

// IncrementNcfRetries increments and returns a slot's NCF retry counter.
func (w *RXW) IncrementNcfRetries(sequence uint32) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	slot, ok := w.slots[sequence]
	if !ok {
		return -1
	}
	slot.NcfRetries++
	return slot.NcfRetries
}

// IncrementDataRetries increments and returns a slot's RDATA retry counter.
func (w *RXW) IncrementDataRetries(sequence uint32) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	slot, ok := w.slots[sequence]
	if !ok {
		return -1
	}
	slot.DataRetries++
	return slot.DataRetries
}

// BackOffHead, WaitNcfHead, and WaitDataHead peek the oldest sequence on
// each timer queue without removing it, for the receiver engine's NAK
// ladder (spec.md §4.7).
func (w *RXW) BackOffHead() (uint32, int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queueHeadLocked(w.backOff)
}

func (w *RXW) WaitNcfHead() (uint32, int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queueHeadLocked(w.waitNcf)
}

func (w *RXW) WaitDataHead() (uint32, int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queueHeadLocked(w.waitData)
}

func (w *RXW) queueHeadLocked(q []uint32) (uint32, int64, bool) {
	if len(q) == 0 {
		return 0, 0, false
	}
	seq := q[0]
	slot, ok := w.slots[seq]
	if !ok {
		return 0, 0, false
	}
	return seq, slot.Expiry, true
}

// MarkDuplicateSPM records a duplicate SPM sighting (spec.md §8 S4).
func (w *RXW) MarkDuplicateSPM() {
	atomic.AddUint64(&w.stats.DupSpms, 1)
}

// ObserveSPMSqn reports whether spmSqn is a duplicate of, or older than,
// the last-seen SPM sequence (serial comparison); if not, it records
// spmSqn as the new last.
func (w *RXW) ObserveSPMSqn(spmSqn uint32) (duplicate bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.haveLastSpmSqn && gsi.LessEqual(spmSqn, w.lastSpmSqn) {
		return true
	}
	w.lastSpmSqn = spmSqn
	w.haveLastSpmSqn = true
	return false
}

// RemoveCommit releases delivered slots that have also fallen behind the
// live window trail back to the garbage collector, advancing commitTrail.
func (w *RXW) RemoveCommit() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	freed := 0
	for gsi.Less(w.commitTrail, w.commitLead) && gsi.LessEqual(w.commitTrail, w.trail) {
		delete(w.slots, w.commitTrail)
		w.commitTrail++
		freed++
	}
	return freed
}

func parityOffsetOf(s *skb.Skb) *uint32 {
	if s.Packet == nil {
		return nil
	}
	for _, o := range s.Packet.Options {
		if o.Type == wire.OptParityCur {
			if v, err := o.AsParityCur(); err == nil {
				return &v
			}
		}
	}
	return nil
}

func parityGrpOf(s *skb.Skb) *uint32 {
	if s.Packet == nil {
		return nil
	}
	for _, o := range s.Packet.Options {
		if o.Type == wire.OptParityGrp {
			if v, err := o.AsParityGrp(); err == nil {
				return &v
			}
		}
	}
	return nil
}
