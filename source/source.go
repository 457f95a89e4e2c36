// Package source implements the PGM source engine: ODATA/RDATA emission
// through the Transmit Window, SPM ambient/heartbeat scheduling, and NAK
// intake that feeds the retransmit queue (spec.md §4.6).
//
// Grounded on saver/saver.go's Saver/Connection shape (adapted: one
// "connection" becomes one transmission group's repair bookkeeping) and
// collector/collector.go's ticker-driven scheduling idiom, adapted here
// for SPM's min(ambient, heartbeat[index]) expiry rule rather than a fixed
// poll period.
package source

import (
	"sync"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/pgmerr"
	"github.com/steve-o/openpgm-sub004/ratelimit"
	"github.com/steve-o/openpgm-sub004/rs"
	"github.com/steve-o/openpgm-sub004/skb"
	"github.com/steve-o/openpgm-sub004/txw"
	"github.com/steve-o/openpgm-sub004/wire"
)

// Stats are the source engine's cumulative counters.
type Stats struct {
	ODataSent     uint64
	RDataSent     uint64
	ParitySent    uint64
	BytesSent     uint64
	SpmsSent      uint64
	NaksReceived  uint64
	MalformedNaks uint64
	NaksIgnored   uint64
}

// Source is one socket's send-side engine: sequencing, the transmit
// window, repair pacing, and SPM scheduling.
type Source struct {
	mu  sync.Mutex
	tsi gsi.TSI
	cfg Config

	TXW    *txw.TXW
	bucket *ratelimit.Bucket
	code   *rs.RS

	spmSqn        uint32
	heartbeatIdx  int
	nextSpmExpiry int64

	pendingTg map[uint32][][]byte // tg -> source TSDU bodies collected toward proactive parity

	stats Stats
}

// New creates a Source. now is the caller's current monotonic microsecond
// reading (pgmtime.Clock.NowMicros()), used to seed the rate limiter and
// the first SPM deadline.
func New(tsi gsi.TSI, txwCapacity uint32, cfg Config, now int64) *Source {
	s := &Source{
		tsi: tsi,
		cfg: cfg,
		TXW: txw.New(txwCapacity),
	}
	if cfg.MaxRtePerSec > 0 {
		s.bucket = ratelimit.New(cfg.MaxRtePerSec, float64(cfg.MTU), now)
	}
	if cfg.FECEnabled && cfg.GroupSize > 0 && cfg.BlockSize > cfg.GroupSize {
		if code, err := rs.New(int(cfg.BlockSize), int(cfg.GroupSize)); err == nil {
			s.code = code
			s.pendingTg = make(map[uint32][][]byte)
		}
	}
	s.nextSpmExpiry = now + cfg.AmbientSPM.Microseconds()
	return s
}

// Stats returns a snapshot of the engine's counters.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Send fragments data into one or more ODATA packets (plus any proactive
// parity a complete transmission group produces), appends each to the
// transmit window, and serializes them to wire bytes ready for the socket
// core to write out (spec.md §4.6 "Send API variants").
//
// Pre-condition: len(data) must not need more fragments than the window's
// capacity allows (spec.md: "APDU length ≤ txw_capacity × max_tsdu_fragment").
func (s *Source) Send(data []byte, now int64) (pgmerr.Status, []*skb.Skb, error) {
	if len(data) == 0 {
		return pgmerr.ErrorStatus, nil, pgmerr.New(pgmerr.DomainSocket, pgmerr.CodeFault, "zero-length send")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	maxTSDU := s.cfg.maxTSDU()
	nFrag := (len(data) + maxTSDU - 1) / maxTSDU
	if uint32(nFrag) > s.TXW.Capacity() {
		return pgmerr.ErrorStatus, nil, pgmerr.New(pgmerr.DomainSocket, pgmerr.CodeFault,
			"APDU needs %d fragments, exceeds window capacity %d", nFrag, s.TXW.Capacity())
	}

	fragmented := nFrag > 1
	var out []*skb.Skb
	var firstSqn uint32

	for i := 0; i < nFrag; i++ {
		lo := i * maxTSDU
		hi := lo + maxTSDU
		if hi > len(data) {
			hi = len(data)
		}
		tsdu := data[lo:hi]

		pkt := &wire.Packet{Header: wire.Header{SourcePort: s.tsi.SPort, Type: wire.TypeODATA, GSI: s.tsi.GSI}}
		sk := skb.New(s.tsi, 0, pkt, nil, time.Time{})
		sequence := s.TXW.Add(sk)
		if i == 0 {
			firstSqn = sequence
		}
		if fragmented {
			pkt.Options = []wire.Option{wire.FragmentOption(wire.Fragment{
				APDUFirstSqn: firstSqn,
				Offset:       uint32(lo),
				TotalLength:  uint32(len(data)),
			})}
		}
		pkt.Header.DataLength = uint16(len(tsdu))
		pkt.Body = wire.EncodeDataBody(sequence, tsdu)

		buf, err := wire.Serialize(pkt)
		if err != nil {
			return pgmerr.ErrorStatus, nil, err
		}
		sk.Buf = buf
		out = append(out, sk)
		s.stats.ODataSent++
		s.stats.BytesSent += uint64(len(buf))
		metrics.OdataSentTotal.Inc()
		metrics.BytesSentTotal.Add(float64(len(buf)))

		if s.code != nil {
			out = append(out, s.collectForFECLocked(sequence, tsdu)...)
		}
	}

	return pgmerr.Normal, out, nil
}

// collectForFECLocked tracks tsdu against its transmission group and, once
// proactive FEC is enabled and the group has accumulated k source
// packets, generates and returns its n-k parity packets. Callers must
// hold s.mu.
//
// The RS matrix needs every row the same width, so OPT_VAR_PKTLEN is
// rejected wherever FEC is active (rxw.ConfigureFEC): an application
// sending variable-length TSDUs into an FEC group is already out of
// contract, so tsdu is collected as-is rather than padded to maxTSDU --
// padding here would make the parity width diverge from a genuine
// ODATA packet's own TSDU width, which the receiver cannot undo without
// knowing which bytes were real.
func (s *Source) collectForFECLocked(sequence uint32, tsdu []byte) []*skb.Skb {
	k := uint32(s.code.K)
	tg := sequence / k
	cp := make([]byte, len(tsdu))
	copy(cp, tsdu)
	s.pendingTg[tg] = append(s.pendingTg[tg], cp)

	if !s.cfg.Proactive || len(s.pendingTg[tg]) < s.code.K {
		return nil
	}
	src := s.pendingTg[tg]
	delete(s.pendingTg, tg)
	return s.encodeParityLocked(tg, src)
}

// encodeParityLocked produces the n-k parity packets for one complete
// transmission group and pushes each through the transmit window exactly
// as a data packet would be, so repair requests for either can be served
// from the same TXW slots. Callers must hold s.mu.
func (s *Source) encodeParityLocked(tg uint32, src [][]byte) []*skb.Skb {
	packetLen := len(src[0])
	var out []*skb.Skb
	for offset := s.code.K; offset < s.code.N; offset++ {
		dst := make([]byte, packetLen)
		if err := s.code.Encode(src, offset, dst); err != nil {
			continue
		}

		pkt := &wire.Packet{Header: wire.Header{
			SourcePort: s.tsi.SPort, Type: wire.TypeRDATA, GSI: s.tsi.GSI, Options: wire.HeaderOptParity,
		}}
		pkt.Options = []wire.Option{wire.ParityGrpOption(tg), wire.ParityCurOption(uint32(offset))}
		sk := skb.New(s.tsi, 0, pkt, nil, time.Time{})
		sequence := s.TXW.Add(sk)
		pkt.Header.DataLength = uint16(len(dst))
		pkt.Body = wire.EncodeDataBody(sequence, dst)

		buf, err := wire.Serialize(pkt)
		if err != nil {
			continue
		}
		sk.Buf = buf
		out = append(out, sk)
		s.stats.ParitySent++
		s.stats.BytesSent += uint64(len(buf))
		metrics.ParitySentTotal.Inc()
		metrics.BytesSentTotal.Add(float64(len(buf)))
	}
	return out
}
