package socket

import (
	"time"

	"github.com/steve-o/openpgm-sub004/events"
	"github.com/steve-o/openpgm-sub004/receiver"
	"github.com/steve-o/openpgm-sub004/rs"
	"github.com/steve-o/openpgm-sub004/rxw"
	"github.com/steve-o/openpgm-sub004/source"
	"github.com/steve-o/openpgm-sub004/trace"
)

// FECOptions mirrors the USE_FEC socket option (spec.md §6).
type FECOptions struct {
	BlockSize      uint8
	GroupSize      uint8
	Proactive      bool
	OnDemandParity bool
	VarPktLen      bool
}

// Config enumerates every socket option spec.md §6 names. Exactly one of
// the TXW/RXW sizing triples should be non-zero; txwCapacity/rxwCapacity
// fall back to a fixed default otherwise.
type Config struct {
	MTU int // default 1500, includes IP + PGM headers

	TxwSqns   uint32
	TxwSecs   time.Duration
	TxwMaxRte float64

	RxwSqns   uint32
	RxwSecs   time.Duration
	RxwMaxRte float64

	PeerExpiry     time.Duration
	SPMRExpiry     time.Duration
	NakBOIvl       time.Duration
	NakRptIvl      time.Duration
	NakRdataIvl    time.Duration
	NakDataRetries int
	NakNcfRetries  int

	AmbientSPM   time.Duration
	HeartbeatSPM []time.Duration

	Hops          int // TTL / hop-limit
	MulticastLoop bool
	TOS           uint8
	IPRouterAlert bool

	FEC FECOptions

	SendOnly bool
	RecvOnly bool
	Passive  bool
	NoBlock  bool

	Raw bool // bind a SOCK_RAW/IPPROTO 113 socket instead of UDP encapsulation

	Events events.Notifier // peer join/leave feed; nil falls back to events.NullNotifier()
	Trace  *trace.Writer   // optional raw-datagram capture; nil disables capture
}

const defaultWindowCapacity = 4096

func (cfg Config) txwCapacity() uint32 {
	if cfg.TxwSqns > 0 {
		return cfg.TxwSqns
	}
	if cfg.TxwSecs > 0 && cfg.MTU > 0 && cfg.TxwMaxRte > 0 {
		return uint32(cfg.TxwSecs.Seconds() * cfg.TxwMaxRte / float64(cfg.MTU))
	}
	return defaultWindowCapacity
}

func (cfg Config) rxwCapacity() uint32 {
	if cfg.RxwSqns > 0 {
		return cfg.RxwSqns
	}
	if cfg.RxwSecs > 0 && cfg.MTU > 0 && cfg.RxwMaxRte > 0 {
		return uint32(cfg.RxwSecs.Seconds() * cfg.RxwMaxRte / float64(cfg.MTU))
	}
	return defaultWindowCapacity
}

func (cfg Config) sourceConfig() source.Config {
	return source.Config{
		MTU:            cfg.MTU,
		MaxRtePerSec:   cfg.TxwMaxRte,
		Hops:           cfg.Hops,
		AmbientSPM:     cfg.AmbientSPM,
		HeartbeatSPM:   cfg.HeartbeatSPM,
		FECEnabled:     cfg.FEC.BlockSize > cfg.FEC.GroupSize && cfg.FEC.GroupSize > 0,
		BlockSize:      cfg.FEC.BlockSize,
		GroupSize:      cfg.FEC.GroupSize,
		Proactive:      cfg.FEC.Proactive,
		OnDemandParity: cfg.FEC.OnDemandParity,
	}
}

func (cfg Config) receiverConfig() receiver.Config {
	rc := receiver.DefaultConfig()
	rc.RXWCapacity = cfg.rxwCapacity()
	rc.PeerExpiry = cfg.PeerExpiry
	rc.FEC = rxwFECConfig(cfg.FEC)
	if cfg.Events != nil {
		rc.Events = cfg.Events
	}
	if cfg.NakBOIvl > 0 {
		rc.NakBOIvl = cfg.NakBOIvl
	}
	if cfg.NakRptIvl > 0 {
		rc.NakRptIvl = cfg.NakRptIvl
	}
	if cfg.NakRdataIvl > 0 {
		rc.NakRdataIvl = cfg.NakRdataIvl
	}
	if cfg.NakNcfRetries > 0 {
		rc.NakNcfRetries = cfg.NakNcfRetries
	}
	if cfg.NakDataRetries > 0 {
		rc.NakDataRetries = cfg.NakDataRetries
	}
	if cfg.FEC.BlockSize > cfg.FEC.GroupSize && cfg.FEC.GroupSize > 0 {
		if code, err := rs.New(int(cfg.FEC.BlockSize), int(cfg.FEC.GroupSize)); err == nil {
			rc.FECCode = code
		}
	}
	return rc
}

func rxwFECConfig(fec FECOptions) rxw.FECConfig {
	return rxw.FECConfig{
		BlockSize:      fec.BlockSize,
		GroupSize:      fec.GroupSize,
		Proactive:      fec.Proactive,
		OnDemandParity: fec.OnDemandParity,
		VarPktLen:      fec.VarPktLen,
	}
}
