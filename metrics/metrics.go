// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: requests, files, tests, api calls.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OdataReceivedTotal counts ODATA packets admitted into a peer's RXW,
	// labeled by the sending peer's TSI string.
	OdataReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_odata_received_total",
			Help: "ODATA packets accepted into the receive window, by peer.",
		}, []string{"peer"})

	// RdataReceivedTotal counts retransmitted RDATA packets admitted.
	RdataReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_rdata_received_total",
			Help: "RDATA (repair) packets accepted into the receive window, by peer.",
		}, []string{"peer"})

	// ParityReceivedTotal counts FEC parity packets admitted.
	ParityReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_parity_received_total",
			Help: "FEC parity packets accepted into the receive window, by peer.",
		}, []string{"peer"})

	// BytesReceivedTotal sums TSDU bytes admitted into a peer's RXW.
	BytesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_bytes_received_total",
			Help: "TSDU bytes accepted into the receive window, by peer.",
		}, []string{"peer"})

	// SpmsReceivedTotal counts SPMs processed per peer.
	SpmsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_spms_received_total",
			Help: "SPM packets processed, by peer.",
		}, []string{"peer"})

	// DupSpmsTotal counts SPMs whose sequence had already been observed.
	DupSpmsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_dup_spms_total",
			Help: "Duplicate SPM sequences observed, by peer.",
		}, []string{"peer"})

	// NcfsReceivedTotal counts NCFs processed per peer.
	NcfsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_ncfs_received_total",
			Help: "NCF packets processed, by peer.",
		}, []string{"peer"})

	// NaksSentTotal counts the sequences requested by NAKs the NAK ladder
	// builds, by peer; each OPT_NAK_LIST entry counts as one.
	NaksSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_naks_sent_total",
			Help: "Sequences requested by the receive-side retry ladder's NAKs, by peer.",
		}, []string{"peer"})

	// NaksFailedRxwAdvancedTotal counts unrepaired sequences the receive
	// window declared LOST because the source's trail advanced past them
	// before a repair arrived (spec.md §8 S6).
	NaksFailedRxwAdvancedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_naks_failed_rxw_advanced_total",
			Help: "Sequences declared unrecoverably lost because the transmit window advanced past them first.",
		})

	// PacketErrorsTotal counts packets rejected as undecodable, by failure
	// reason (checksum, malformed, bounds): either by wire.Parse, before a
	// peer can be attributed, or by a per-type body decode after it.
	PacketErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_packet_errors_total",
			Help: "Packets rejected as undecodable, by reason.",
		}, []string{"reason"})

	// OdataSentTotal, RdataSentTotal, ParitySentTotal, BytesSentTotal,
	// SpmsSentTotal are this socket's own send-side counters; a single
	// process runs at most one source per socket, so no peer label
	// applies.
	OdataSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_odata_sent_total",
			Help: "Original data packets transmitted.",
		})
	RdataSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_rdata_sent_total",
			Help: "Repair data packets transmitted.",
		})
	ParitySentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_parity_sent_total",
			Help: "FEC parity packets transmitted.",
		})
	BytesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_bytes_sent_total",
			Help: "Wire bytes transmitted (data, repair, parity and SPM packets).",
		})
	SpmsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_spms_sent_total",
			Help: "Source Path Messages transmitted.",
		})

	// DispatchIntervalHistogram tracks the wall-clock gap between
	// consecutive Socket.Dispatch calls, the PGM-side analogue of the
	// reference netlink collector's polling-interval histogram.
	DispatchIntervalHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgm_dispatch_interval_histogram",
			Help:    "Wall-clock interval between Dispatch calls (seconds).",
			Buckets: prometheus.LinearBuckets(0, .01, 20),
		},
	)

	// NaksReceivedTotal, MalformedNaksTotal, NaksIgnoredTotal track the
	// source engine's inbound NAK handling (source.Source.ProcessNak).
	NaksReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_naks_received_total",
			Help: "NAKs received by the source engine.",
		})
	MalformedNaksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_malformed_naks_total",
			Help: "NAKs dropped for a malformed body or option.",
		})
	NaksIgnoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_naks_ignored_total",
			Help: "NAK-requested sequences ignored because they lie outside the transmit window.",
		})

	// RateLimitTakesGrantedTotal, RateLimitTakesDeniedTotal,
	// RateLimitBytesGrantedTotal instrument the repair pacer.
	RateLimitTakesGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_ratelimit_takes_granted_total",
			Help: "Token-bucket withdrawals that succeeded immediately.",
		})
	RateLimitTakesDeniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_ratelimit_takes_denied_total",
			Help: "Token-bucket withdrawals that had to wait.",
		})
	RateLimitBytesGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgm_ratelimit_bytes_granted_total",
			Help: "Bytes released by the repair pacer.",
		})

	// ApdusDeliveredTotal and BytesDeliveredTotal count data actually
	// handed to the application via Recvmsgv, by peer.
	ApdusDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_apdus_delivered_total",
			Help: "Application data units delivered to the caller, by peer.",
		}, []string{"peer"})
	BytesDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgm_bytes_delivered_total",
			Help: "Application bytes delivered to the caller, by peer.",
		}, []string{"peer"})
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in openpgm.metrics are registered.")
}
