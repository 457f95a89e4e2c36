// Package receiver implements the PGM receiver engine: wire ingest into
// per-peer Receive Windows, SPM/NCF processing, the three-stage NAK
// ladder, and recvmsgv-style delivery (spec.md §4.7).
//
// Grounded on collector/collector.go's ticker-driven Run/appendAll shape
// (adapted: one tick scans BACK_OFF/WAIT_NCF/WAIT_DATA queues instead of
// polling netlink sockets) and cache/cache.go's EndCycle residual-eviction
// idea (adapted into "mark LOST what expired this tick").
package receiver

import (
	"net"
	"time"

	"github.com/steve-o/openpgm-sub004/events"
	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/peer"
	"github.com/steve-o/openpgm-sub004/pgmerr"
	"github.com/steve-o/openpgm-sub004/rxw"
	"github.com/steve-o/openpgm-sub004/skb"
	"github.com/steve-o/openpgm-sub004/wire"
)

// Receiver is one socket's receive-side engine: the peer table plus the
// NAK-ladder and delivery logic that walks it.
type Receiver struct {
	cfg   Config
	peers *peer.Table
}

// New creates a Receiver with an empty peer table.
func New(cfg Config) *Receiver {
	if cfg.Events == nil {
		cfg.Events = events.NullNotifier()
	}
	return &Receiver{cfg: cfg, peers: peer.NewTable()}
}

// Peers exposes the peer table for the socket core's notifier/eviction
// wiring and for tests.
func (r *Receiver) Peers() *peer.Table {
	return r.peers
}

// Ingest parses one datagram and routes it to the owning peer's Receive
// Window. buf is the full wire datagram (not just the TSDU): it is kept
// on the resulting skb as its raw bytes, while rxw.Add's uniform-length
// check within an FEC transmission group compares TSDU lengths, not buf.
// now is wall-clock (peer liveness);
// nowUs is the caller's monotonic microsecond reading (window timers).
//
// NAK, NNAK, ACK, POLL, and POLR are not consumed here: the receiver
// engine only processes the packet types a source emits toward it.
func (r *Receiver) Ingest(buf []byte, srcNLA net.IP, now time.Time, nowUs int64) (pgmerr.Status, error) {
	pkt, err := wire.Parse(buf)
	if err != nil {
		metrics.PacketErrorsTotal.WithLabelValues(packetErrorReason(err)).Inc()
		return pgmerr.ErrorStatus, err
	}

	tsi := gsi.TSI{GSI: pkt.Header.GSI, SPort: pkt.Header.SourcePort}
	p, created := r.peers.GetOrCreate(tsi, srcNLA, r.cfg.GroupNLA, r.cfg.RXWCapacity, now)
	if created {
		if r.cfg.FECCode != nil {
			p.RXW.ConfigureFEC(r.cfg.FEC, r.cfg.FECCode)
		}
		r.cfg.Events.PeerJoined(now, tsi)
	}
	p.Touch(now)

	switch pkt.Header.Type {
	case wire.TypeSPM:
		return r.processSPM(p, pkt, nowUs)
	case wire.TypeODATA, wire.TypeRDATA:
		return r.processData(p, pkt, buf, now, nowUs)
	case wire.TypeNCF:
		return r.processNCF(p, pkt, nowUs)
	default:
		return pgmerr.Normal, nil
	}
}

func (r *Receiver) processSPM(p *peer.Peer, pkt *wire.Packet, nowUs int64) (pgmerr.Status, error) {
	body, err := wire.DecodeSPMBody(pkt.Body)
	if err != nil {
		metrics.PacketErrorsTotal.WithLabelValues("malformed").Inc()
		return pgmerr.ErrorStatus, err
	}
	metrics.SpmsReceivedTotal.WithLabelValues(p.TSI.String()).Inc()
	dup := p.ObserveSPM(body.Sqn)
	if p.RXW.ObserveSPMSqn(body.Sqn) {
		p.RXW.MarkDuplicateSPM()
		metrics.DupSpmsTotal.WithLabelValues(p.TSI.String()).Inc()
	}
	if dup {
		return pgmerr.Normal, nil
	}
	p.RXW.Update(body.Lead, body.Trail, nowUs, nowUs+r.cfg.NakBOIvl.Microseconds())
	return pgmerr.Normal, nil
}

func (r *Receiver) processData(p *peer.Peer, pkt *wire.Packet, raw []byte, now time.Time, nowUs int64) (pgmerr.Status, error) {
	seq, tsdu, err := wire.DecodeDataBody(pkt.Body)
	if err != nil {
		metrics.PacketErrorsTotal.WithLabelValues("malformed").Inc()
		return pgmerr.ErrorStatus, err
	}
	// The wire-level sequence prefix has been consumed; from here on
	// Packet.Body holds the TSDU only, matching the window's convention.
	pkt.Body = tsdu

	sk := skb.New(p.TSI, seq, pkt, raw, now)
	switch p.RXW.Add(sk, nowUs, nowUs+r.cfg.NakBOIvl.Microseconds()) {
	case rxw.Appended, rxw.Inserted:
		p.HasPendingData = true
		p.Stats.BytesReceived += uint64(len(tsdu))
		metrics.BytesReceivedTotal.WithLabelValues(p.TSI.String()).Add(float64(len(tsdu)))
		switch {
		case pkt.Header.Options&wire.HeaderOptParity != 0:
			p.Stats.ParityReceived++
			metrics.ParityReceivedTotal.WithLabelValues(p.TSI.String()).Inc()
		case pkt.Header.Type == wire.TypeRDATA:
			p.Stats.RDataReceived++
			metrics.RdataReceivedTotal.WithLabelValues(p.TSI.String()).Inc()
		default:
			p.Stats.ODataReceived++
			metrics.OdataReceivedTotal.WithLabelValues(p.TSI.String()).Inc()
		}
	}
	return pgmerr.Normal, nil
}

func (r *Receiver) processNCF(p *peer.Peer, pkt *wire.Packet, nowUs int64) (pgmerr.Status, error) {
	nb, err := wire.DecodeNakBody(pkt.Body)
	if err != nil {
		metrics.PacketErrorsTotal.WithLabelValues("malformed").Inc()
		return pgmerr.ErrorStatus, err
	}
	metrics.NcfsReceivedTotal.WithLabelValues(p.TSI.String()).Inc()
	rdataExpiry := nowUs + r.cfg.NakRdataIvl.Microseconds()
	rbExpiry := nowUs + r.cfg.NakBOIvl.Microseconds()
	p.RXW.Confirm(nb.Sequence, nowUs, rdataExpiry, rbExpiry)
	return pgmerr.Normal, nil
}

// packetErrorReason classifies a wire.Parse failure for the
// pgm_packet_errors_total{reason} label.
func packetErrorReason(err error) string {
	if pgmerr.Is(err, pgmerr.DomainPacket, pgmerr.CodeChecksum) {
		return "checksum"
	}
	if pgmerr.Is(err, pgmerr.DomainPacket, pgmerr.CodeBounds) {
		return "bounds"
	}
	return "malformed"
}
