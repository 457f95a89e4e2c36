package source

import (
	"math/bits"

	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/wire"
)

// ProcessNak ingests a parsed NAK/NNAK packet, pushing every requested
// sequence onto the transmit window's retransmit queue (spec.md §4.6
// "NAK processing"). An OPT_NAK_LIST option coalesces up to
// wire.MaxNakListEntries additional sequences onto the same push; an
// OPT_PARITY_GRP option marks the whole NAK as a parity request for one
// transmission group rather than a list of individual sequences.
//
// Receipt of any NAK resets the SPM heartbeat index to 0 (spec.md §4.6:
// "receipt of NAK resets heartbeat index to 0"), since a source under
// active loss recovery should advertise its window extents more often.
func (s *Source) ProcessNak(pkt *wire.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, err := wire.DecodeNakBody(pkt.Body)
	if err != nil {
		s.stats.MalformedNaks++
		metrics.MalformedNaksTotal.Inc()
		return
	}
	s.stats.NaksReceived++
	metrics.NaksReceivedTotal.Inc()
	s.heartbeatIdx = 0

	var parityTg uint32
	isParity := false
	sqns := []uint32{nb.Sequence}

	for _, o := range pkt.Options {
		switch o.Type {
		case wire.OptNakList:
			more, err := o.AsNakList()
			if err != nil {
				s.stats.MalformedNaks++
				metrics.MalformedNaksTotal.Inc()
				return
			}
			sqns = append(sqns, more...)
		case wire.OptParityGrp:
			grp, err := o.AsParityGrp()
			if err != nil {
				s.stats.MalformedNaks++
				metrics.MalformedNaksTotal.Inc()
				return
			}
			isParity = true
			parityTg = grp
		}
	}

	if isParity {
		s.TXW.RetransmitPush(parityTg<<s.parityShiftLocked(), true, s.parityShiftLocked())
		return
	}

	for _, sqn := range sqns {
		if _, ok := s.TXW.Peek(sqn); !ok {
			s.stats.NaksIgnored++
			metrics.NaksIgnoredTotal.Inc()
			continue
		}
		s.TXW.RetransmitPush(sqn, false, 0)
	}
}

// parityShiftLocked returns the bit shift such that tg<<shift recovers a
// representative sequence whose sequence>>shift is tg again, the inverse
// of TXW.RetransmitPush's "tg = sequence >> tgSqnShift" rule. This assumes
// a power-of-two group size, matching every group size spec.md's
// scenarios use (k=2, k=8). Callers must hold s.mu.
func (s *Source) parityShiftLocked() uint {
	if s.code == nil || s.code.K <= 1 {
		return 0
	}
	return uint(bits.Len(uint(s.code.K - 1)))
}
