package receiver

import (
	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/peer"
	"github.com/steve-o/openpgm-sub004/rxw"
	"github.com/steve-o/openpgm-sub004/wire"
)

// ScanNakLadder advances one peer's three-stage NAK ladder (spec.md §4.7)
// and returns the NAK packets it needs to send. nowUs is the caller's
// current monotonic microsecond reading.
//
// Stage 1 (BACK_OFF) coalesces every run of consecutive sequences whose
// backoff has elapsed into as few OPT_NAK_LIST packets as
// wire.MaxNakListEntries allows, and moves them to WAIT_NCF. Stages 2
// (WAIT_NCF) and 3 (WAIT_DATA) resend one NAK per expired slot up to
// their retry budgets, or mark the slot LOST once exhausted.
func (r *Receiver) ScanNakLadder(p *peer.Peer, nowUs int64) []*wire.Packet {
	var out []*wire.Packet

	expired := r.drainBackOffLocked(p, nowUs)
	for _, run := range groupConsecutive(expired) {
		out = append(out, r.buildNak(p, run))
	}

	out = append(out, r.scanWaitNcf(p, nowUs)...)
	out = append(out, r.scanWaitData(p, nowUs)...)
	return out
}

func (r *Receiver) drainBackOffLocked(p *peer.Peer, nowUs int64) []uint32 {
	var expired []uint32
	for {
		seq, expiry, ok := p.RXW.BackOffHead()
		if !ok || expiry > nowUs {
			break
		}
		p.RXW.SetState(seq, rxw.WaitNcf, nowUs+r.cfg.NakRptIvl.Microseconds())
		expired = append(expired, seq)
	}
	return expired
}

func (r *Receiver) scanWaitNcf(p *peer.Peer, nowUs int64) []*wire.Packet {
	var out []*wire.Packet
	for {
		seq, expiry, ok := p.RXW.WaitNcfHead()
		if !ok || expiry > nowUs {
			break
		}
		if retries := p.RXW.IncrementNcfRetries(seq); retries <= r.cfg.NakNcfRetries {
			p.RXW.SetState(seq, rxw.WaitNcf, nowUs+r.cfg.NakRptIvl.Microseconds())
			out = append(out, r.buildNak(p, []uint32{seq}))
		} else {
			p.RXW.Lost(seq)
		}
	}
	return out
}

func (r *Receiver) scanWaitData(p *peer.Peer, nowUs int64) []*wire.Packet {
	var out []*wire.Packet
	for {
		seq, expiry, ok := p.RXW.WaitDataHead()
		if !ok || expiry > nowUs {
			break
		}
		if retries := p.RXW.IncrementDataRetries(seq); retries <= r.cfg.NakDataRetries {
			p.RXW.SetState(seq, rxw.WaitData, nowUs+r.cfg.NakRdataIvl.Microseconds())
			out = append(out, r.buildNak(p, []uint32{seq}))
		} else {
			p.RXW.Lost(seq)
		}
	}
	return out
}

// buildNak serializes a NAK addressed to p for the given run of
// sequences (ascending, len(run)>=1), attaching OPT_NAK_LIST when the
// run coalesces more than one sequence.
func (r *Receiver) buildNak(p *peer.Peer, run []uint32) *wire.Packet {
	pkt := &wire.Packet{Header: wire.Header{
		SourcePort: r.cfg.OwnPort, DestPort: p.TSI.SPort, Type: wire.TypeNAK, GSI: p.TSI.GSI,
	}}
	pkt.Body = wire.EncodeNakBody(wire.NakBody{Sequence: run[0]})
	p.Stats.NaksSent++
	sent := 1
	if len(run) > 1 {
		if opt, err := wire.NakListOption(run[1:]); err == nil {
			pkt.Options = []wire.Option{opt}
			p.Stats.NaksSent += uint64(len(run) - 1)
			sent = len(run)
		}
	}
	metrics.NaksSentTotal.WithLabelValues(p.TSI.String()).Add(float64(sent))
	return pkt
}

// groupConsecutive splits an ascending slice of sequences into runs of
// consecutive values, each capped at wire.MaxNakListEntries+1 entries (one
// primary sequence plus up to MaxNakListEntries more in its NAK-list).
func groupConsecutive(seqs []uint32) [][]uint32 {
	if len(seqs) == 0 {
		return nil
	}
	var groups [][]uint32
	run := []uint32{seqs[0]}
	for _, s := range seqs[1:] {
		if s == run[len(run)-1]+1 && len(run) < wire.MaxNakListEntries+1 {
			run = append(run, s)
			continue
		}
		groups = append(groups, run)
		run = []uint32{s}
	}
	return append(groups, run)
}
