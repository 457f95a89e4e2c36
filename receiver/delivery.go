package receiver

import (
	"time"

	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/peer"
	"github.com/steve-o/openpgm-sub004/pgmerr"
)

// Recvmsgv walks every peer with pending data and drains its Receive
// Window via Readv, per spec.md §4.7: "recvmsgv walks peers that are
// marked pending; for each, RXW.readv yields zero or more APDU message
// vectors." It returns NORMAL when at least one message was read;
// otherwise WOULD_BLOCK, or RESET the first call after an unrecoverable
// loss surfaces (spec.md §8 S5) -- delivery for peers unaffected by that
// loss resumes on the following call.
func (r *Receiver) Recvmsgv() (pgmerr.Status, [][]byte) {
	var out [][]byte
	reset := false

	r.peers.Range(func(p *peer.Peer) bool {
		if p.RXW.TakeReset() {
			reset = true
			return false
		}
		return true
	})
	if reset {
		return pgmerr.Reset, nil
	}

	r.peers.Range(func(p *peer.Peer) bool {
		if !p.HasPendingData {
			return true
		}
		msgs := p.RXW.Readv()
		if len(msgs) == 0 {
			p.HasPendingData = false
			return true
		}
		for _, m := range msgs {
			p.Stats.APDUsDelivered++
			p.Stats.BytesDelivered += uint64(len(m))
		}
		metrics.ApdusDeliveredTotal.WithLabelValues(p.TSI.String()).Add(float64(len(msgs)))
		bytes := 0
		for _, m := range msgs {
			bytes += len(m)
		}
		metrics.BytesDeliveredTotal.WithLabelValues(p.TSI.String()).Add(float64(bytes))
		out = append(out, msgs...)
		return true
	})

	if len(out) == 0 {
		return pgmerr.WouldBlock, nil
	}
	return pgmerr.Normal, out
}

// ExpirePeers evicts peers silent for longer than PeerExpiry (spec.md
// §4.6: "a peer is declared dead after peer_expiry of silence; its RXW
// is freed") and returns the evicted peers so the socket core can emit
// departure notifications.
func (r *Receiver) ExpirePeers(now time.Time) []*peer.Peer {
	evicted := r.peers.ExpireStale(now, r.cfg.PeerExpiry)
	for _, p := range evicted {
		r.cfg.Events.PeerLeft(now, p.TSI)
	}
	return evicted
}
