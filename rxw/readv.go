package rxw

import (
	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/skb"
	"github.com/steve-o/openpgm-sub004/wire"
)

// Readv delivers every contiguous HAVE_DATA slot from the commit lead
// forward, reassembling OPT_FRAGMENT APDUs and skipping over HAVE_PARITY
// slots (parity packets occupy the flat sequence space but never reach
// the application). A fragment slot only moves to COMMIT_DATA, and
// commitLead only advances past it, once the whole APDU it belongs to has
// been fully reassembled and emitted; an APDU still missing a later
// fragment when this call reaches the live lead is held in w.partialAPDU
// for the next call to resume rather than being discarded. Translated in
// spirit from pgm_rxw_readv.
func (w *RXW) Readv() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.commitLead
	if gsi.Less(seq, w.trail) {
		seq = w.trail
	}

	var out [][]byte
	committed := seq

	for gsi.Less(seq, w.lead) {
		slot, ok := w.slots[seq]
		if !ok {
			break
		}
		if slot.State == HaveParity {
			slot.State = CommitParity
			seq++
			committed = seq
			continue
		}
		if slot.State == Lost {
			// Never arriving and already surfaced via TakeReset; skip
			// it rather than block every later sequence forever.
			seq++
			committed = seq
			continue
		}
		if slot.State != HaveData {
			break
		}

		frag := fragmentOf(slot.Skb)
		if frag == nil {
			out = append(out, slot.Skb.TSDU())
			slot.State = CommitData
			seq++
			committed = seq
			continue
		}

		if !w.havePartialAPDU || frag.APDUFirstSqn != w.partialAPDUFirst {
			w.partialAPDU = nil
			w.partialAPDUFirst = frag.APDUFirstSqn
			w.partialAPDUNext = frag.APDUFirstSqn
			w.havePartialAPDU = true
		}
		if seq == w.partialAPDUNext {
			w.partialAPDU = append(w.partialAPDU, slot.Skb.TSDU()...)
			w.partialAPDUNext = seq + 1
		}
		seq++

		if uint32(len(w.partialAPDU)) >= frag.TotalLength {
			out = append(out, w.partialAPDU)
			for s := frag.APDUFirstSqn; s < w.partialAPDUNext; s++ {
				if fs, ok := w.slots[s]; ok {
					fs.State = CommitData
				}
			}
			w.partialAPDU = nil
			w.havePartialAPDU = false
			committed = seq
		}
	}

	if gsi.Less(w.commitLead, committed) {
		w.commitLead = committed
	}
	return out
}

func fragmentOf(s *skb.Skb) *wire.Fragment {
	if s == nil || s.Packet == nil {
		return nil
	}
	for _, o := range s.Packet.Options {
		if o.Type == wire.OptFragment {
			if f, err := o.AsFragment(); err == nil {
				return &f
			}
		}
	}
	return nil
}
