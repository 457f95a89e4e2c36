package source

import (
	"time"

	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/skb"
	"github.com/steve-o/openpgm-sub004/wire"
)

// NextSPMExpiry reports the next absolute microsecond instant (per
// pgmtime.Clock.NowMicros()) at which the socket core should call
// BuildSPM: min(ambient, heartbeat[index]) from the last SPM (spec.md
// §4.6).
func (s *Source) NextSPMExpiry() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSpmExpiry
}

// BuildSPM produces the next SPM, advancing the heartbeat schedule and
// rescheduling NextSPMExpiry. now is the caller's current monotonic
// microsecond reading.
func (s *Source) BuildSPM(now int64) *skb.Skb {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqn := s.spmSqn
	s.spmSqn++

	pkt := &wire.Packet{Header: wire.Header{SourcePort: s.tsi.SPort, Type: wire.TypeSPM, GSI: s.tsi.GSI}}
	pkt.Body = wire.EncodeSPMBody(wire.SPMBody{Sqn: sqn, Trail: s.TXW.Trail(), Lead: s.TXW.Lead()})

	buf, err := wire.Serialize(pkt)
	sk := skb.New(s.tsi, sqn, pkt, buf, time.Time{})
	if err == nil {
		s.stats.SpmsSent++
		s.stats.BytesSent += uint64(len(buf))
		metrics.SpmsSentTotal.Inc()
		metrics.BytesSentTotal.Add(float64(len(buf)))
	}

	schedule := s.cfg.heartbeat()
	hb := schedule[s.heartbeatIdx]
	if s.heartbeatIdx < len(schedule)-1 {
		s.heartbeatIdx++
	}
	nextUs := hb.Microseconds()
	if ambient := s.cfg.AmbientSPM.Microseconds(); ambient < nextUs {
		nextUs = ambient
	}
	s.nextSpmExpiry = now + nextUs

	return sk
}
