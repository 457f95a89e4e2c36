// Package socket implements the PGM socket core: binding, the
// reader/writer and receiver mutex model, pacing, and timer dispatch that
// ties the source engine, receiver engine, and peer table to an actual
// datagram socket (spec.md §4.8, §5).
//
// Grounded on the reference corpus's unix.Socket/setsockopt/Recvfrom raw
// socket idiom (adapted from AF_PACKET link-layer capture to AF_INET/UDP
// multicast in bind.go) and eventsocket/server.go's mutex-guarded
// connection-map shape for the receiver-mutex-serializes-recvmsg-against-
// timers rule spec.md §5 describes.
package socket

import (
	"net"
	"sync"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/metrics"
	"github.com/steve-o/openpgm-sub004/peer"
	"github.com/steve-o/openpgm-sub004/pgmerr"
	"github.com/steve-o/openpgm-sub004/pgmtime"
	"github.com/steve-o/openpgm-sub004/receiver"
	"github.com/steve-o/openpgm-sub004/source"
	"github.com/steve-o/openpgm-sub004/wire"
)

// Socket is one PGM endpoint: a bound fd plus whichever of the source and
// receiver engines cfg enables.
type Socket struct {
	fd        int
	groupNLA  net.IP
	groupPort uint16
	tsi       gsi.TSI
	cfg       Config
	clock     *pgmtime.Clock

	// rwMu is the reader/writer lock spec.md §5 describes: operations
	// (Send, RecvOne, Dispatch) hold it for reading, Close for writing.
	rwMu sync.RWMutex
	// recvMu serializes recvmsg-family calls against timer dispatch,
	// spec.md §5's dedicated receiver mutex.
	recvMu sync.Mutex

	destroyed    bool
	lastDispatch time.Time

	Source   *source.Source
	Receiver *receiver.Receiver
}

// New binds a socket and wires up the engines cfg.SendOnly/RecvOnly/
// Passive select. ifaceNLA is the local interface address; groupNLA is
// the multicast group; port is the UDP port (or PGM's own port in raw
// mode, where it is advisory only).
func New(tsi gsi.TSI, cfg Config, ifaceNLA, groupNLA net.IP, port uint16, clock *pgmtime.Clock) (*Socket, error) {
	fd, err := bind(cfg, ifaceNLA, groupNLA, port)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		fd: fd, groupNLA: groupNLA, groupPort: port,
		tsi: tsi, cfg: cfg, clock: clock,
	}
	if !cfg.RecvOnly {
		s.Source = source.New(tsi, cfg.txwCapacity(), cfg.sourceConfig(), clock.NowMicros())
	}
	if !cfg.SendOnly {
		s.Receiver = receiver.New(cfg.receiverConfig())
	}
	return s, nil
}

// Fd exposes the underlying file descriptor for the caller's own
// poll/select/epoll loop, per spec.md §4.8's event-loop integration note.
func (s *Socket) Fd() int {
	return s.fd
}

// Close marks the socket destroyed and releases the fd. Per spec.md §5's
// cancellation note, a full implementation would continue answering NAKs
// for a linger duration first; that drain behavior is not implemented
// here (documented gap, same as source.TryEmitRepair's on-demand-parity
// simplification).
func (s *Socket) Close() error {
	s.rwMu.Lock()
	defer s.rwMu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	return closeFd(s.fd)
}

// Send fragments and transmits an APDU through the source engine,
// returning whatever non-NORMAL status the source reports (WOULD_BLOCK
// is never produced here since Send itself doesn't rate-limit; repairs
// do, via Dispatch/TryEmitRepair).
func (s *Socket) Send(data []byte) (pgmerr.Status, error) {
	s.rwMu.RLock()
	defer s.rwMu.RUnlock()
	if s.destroyed {
		return pgmerr.ErrorStatus, pgmerr.New(pgmerr.DomainSocket, pgmerr.CodeFault, "send on a closed socket")
	}
	if s.Source == nil {
		return pgmerr.ErrorStatus, pgmerr.New(pgmerr.DomainSocket, pgmerr.CodeFault, "socket is RECV_ONLY")
	}

	status, skbs, err := s.Source.Send(data, s.clock.NowMicros())
	if err != nil || status != pgmerr.Normal {
		return status, err
	}
	for _, sk := range skbs {
		if err := sendTo(s.fd, sk.Buf, s.groupNLA, s.groupPort); err != nil {
			return pgmerr.ErrorStatus, err
		}
	}
	return pgmerr.Normal, nil
}

// RecvOne reads and dispatches at most one datagram, returning WOULD_BLOCK
// when the fd has nothing pending. Per spec.md §2 ("SPM/NAK/NCF/ACK
// traverse the same paths") a NAK/NNAK is routed to the source engine's
// repair queue rather than the receiver engine, since it is the source
// side of this socket that owns the data being requested; every other
// type goes to Receiver.Ingest as before. A NAK/NNAK can arrive at a
// send-only socket (that is precisely when a retransmit is needed), so
// RecvOne only requires that at least one engine is enabled.
func (s *Socket) RecvOne(buf []byte) (pgmerr.Status, error) {
	s.rwMu.RLock()
	defer s.rwMu.RUnlock()
	if s.Source == nil && s.Receiver == nil {
		return pgmerr.ErrorStatus, pgmerr.New(pgmerr.DomainSocket, pgmerr.CodeFault, "socket has no engine enabled")
	}

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	data, from, err := recvFrom(s.fd, buf)
	if err != nil {
		return pgmerr.ErrorStatus, err
	}
	if data == nil {
		return pgmerr.WouldBlock, nil
	}
	now := time.Now()
	if s.cfg.Trace != nil {
		s.cfg.Trace.WritePacket(now, data)
	}

	// Peeking the type before deciding where a datagram goes costs a
	// second wire.Parse on the Receiver.Ingest path below, but keeps a
	// single source of truth for parse-error classification: a malformed
	// datagram still falls through to Ingest's own packetErrorReason
	// handling whenever a receiver engine is present to do it.
	pkt, perr := wire.Parse(data)
	if perr == nil && (pkt.Header.Type == wire.TypeNAK || pkt.Header.Type == wire.TypeNNAK) {
		if s.Source != nil {
			s.Source.ProcessNak(pkt)
		}
		return pgmerr.Normal, nil
	}

	if s.Receiver == nil {
		if perr != nil {
			metrics.PacketErrorsTotal.WithLabelValues("malformed").Inc()
			return pgmerr.ErrorStatus, perr
		}
		return pgmerr.Normal, nil // no receiver engine to hand a non-NAK datagram to
	}
	return s.Receiver.Ingest(data, from, now, s.clock.NowMicros())
}

// Recvmsgv drains every peer's deliverable APDUs, per spec.md §4.7.
func (s *Socket) Recvmsgv() (pgmerr.Status, [][]byte) {
	s.rwMu.RLock()
	defer s.rwMu.RUnlock()
	if s.Receiver == nil {
		return pgmerr.ErrorStatus, nil
	}
	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	return s.Receiver.Recvmsgv()
}

// Dispatch runs one cooperative timer tick: SPM ambient/heartbeat
// emission and rate-limited repair transmission on the source side, the
// NAK ladder and stale-peer expiry on the receiver side. The core never
// blocks internally (spec.md §5): callers invoke Dispatch on whatever
// cadence their own event loop chooses, typically whenever Fd() is
// readable or a short idle timeout elapses.
func (s *Socket) Dispatch(now time.Time) (pgmerr.Status, error) {
	s.rwMu.RLock()
	defer s.rwMu.RUnlock()

	if !s.lastDispatch.IsZero() {
		metrics.DispatchIntervalHistogram.Observe(now.Sub(s.lastDispatch).Seconds())
	}
	s.lastDispatch = now

	nowUs := s.clock.NowMicros()
	acted := false

	if s.Source != nil {
		if nowUs >= s.Source.NextSPMExpiry() {
			spm := s.Source.BuildSPM(nowUs)
			sendTo(s.fd, spm.Buf, s.groupNLA, s.groupPort)
			acted = true
		}
		for {
			status, sk, wait := s.Source.TryEmitRepair(nowUs)
			if status == pgmerr.RateLimited {
				_ = wait
				break
			}
			if sk == nil {
				break
			}
			sendTo(s.fd, sk.Buf, s.groupNLA, s.groupPort)
			acted = true
		}
	}

	if s.Receiver != nil {
		s.recvMu.Lock()
		s.Receiver.Peers().Range(func(p *peer.Peer) bool {
			for _, nak := range s.Receiver.ScanNakLadder(p, nowUs) {
				buf, err := wire.Serialize(nak)
				if err == nil {
					sendTo(s.fd, buf, p.SourceNLA, p.TSI.SPort)
					acted = true
				}
			}
			return true
		})
		s.Receiver.ExpirePeers(now)
		s.recvMu.Unlock()
	}

	if acted {
		return pgmerr.Normal, nil
	}
	return pgmerr.TimerPending, nil
}
