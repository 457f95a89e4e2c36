package source

import (
	"time"

	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/pgmerr"
	"github.com/steve-o/openpgm-sub004/skb"
	"github.com/steve-o/openpgm-sub004/wire"
)

// TryEmitRepair peeks the head of the retransmit queue and, if the rate
// limiter has enough tokens, removes it and returns an RDATA skb ready to
// send (spec.md §4.6 "Repair emission is rate-limited by the token
// bucket"). An empty queue is not an error: it returns (Normal, nil, 0).
// An insufficiently-funded bucket returns (RateLimited, nil, wait): the
// caller should retry no sooner than wait.
//
// Data repairs replay the original TSDU re-tagged as RDATA; parity
// repairs are not regenerated here (on-demand parity needs the group's
// still-buffered source TSDUs, tracked by collectForFECLocked, and is
// out of scope for a socket that evicted them once the group closed) --
// the request is drained without emitting a packet.
func (s *Source) TryEmitRepair(now int64) (pgmerr.Status, *skb.Skb, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.TXW.RetransmitTryPeek()
	if !ok {
		return pgmerr.Normal, nil, 0
	}

	if entry.IsParity || entry.Skb == nil {
		s.TXW.RetransmitRemoveHead()
		return pgmerr.Normal, nil, 0
	}

	orig := entry.Skb
	rdata := *orig.Packet
	rdata.Header.Type = wire.TypeRDATA
	buf, err := wire.Serialize(&rdata)
	if err != nil {
		s.TXW.RetransmitRemoveHead()
		return pgmerr.Normal, nil, 0
	}

	if s.bucket != nil {
		if ok, waitUs := s.bucket.TryTake(len(buf), now); !ok {
			return pgmerr.RateLimited, nil, time.Duration(waitUs) * time.Microsecond
		}
	}

	s.TXW.RetransmitRemoveHead()
	s.stats.RDataSent++
	s.stats.BytesSent += uint64(len(buf))
	metrics.RdataSentTotal.Inc()
	metrics.BytesSentTotal.Add(float64(len(buf)))
	return pgmerr.Normal, skb.New(orig.TSI, orig.Sequence, &rdata, buf, time.Time{}), 0
}
