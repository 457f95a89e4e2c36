package source

import "time"

// DefaultHeartbeatSPM is the reference implementation's default escalating
// heartbeat schedule (spec.md §4.6: "a short escalating list, e.g. 100 ms
// → 30 s"): the index resets to 0 whenever a NAK arrives, so a source that
// is actively repairing a loss episode advertises its window extents much
// more often than one idling on the ambient interval alone.
var DefaultHeartbeatSPM = []time.Duration{
	100 * time.Millisecond,
	100 * time.Millisecond,
	100 * time.Millisecond,
	100 * time.Millisecond,
	1300 * time.Millisecond,
	7 * time.Second,
	16 * time.Second,
	25 * time.Second,
	30 * time.Second,
}

// Config holds the per-source socket options that shape emission (spec.md
// §6): window sizing is the caller's concern (the TXW is constructed
// separately and handed to New), this is everything the engine itself
// reads on the send/repair/SPM paths.
type Config struct {
	MTU int // per-packet byte budget, including IP + PGM headers (default 1500)

	MaxRtePerSec float64 // txw_max_rte, bytes/sec; 0 disables rate limiting
	Hops         int     // TTL / hop-limit advertised to the kernel at bind time

	AmbientSPM   time.Duration   // spm_ambient_interval
	HeartbeatSPM []time.Duration // escalating schedule; DefaultHeartbeatSPM if nil

	FECEnabled     bool
	BlockSize      uint8 // n
	GroupSize      uint8 // k
	Proactive      bool
	OnDemandParity bool
}

// headerBudget is the worst-case PGM header overhead this engine reserves
// when computing how much TSDU payload fits in one packet: the 16-byte
// common header plus room for one OPT_FRAGMENT chain (4-byte OPT_LENGTH +
// 2-byte option header + 12-byte body).
const headerBudget = 16 + 4 + 2 + 12

// maxTSDU returns the largest TSDU a single packet can carry under cfg's
// MTU, reserving headerBudget for the common header and a fragment option.
func (cfg Config) maxTSDU() int {
	n := cfg.MTU - headerBudget
	if n < 1 {
		n = 1
	}
	return n
}

func (cfg Config) heartbeat() []time.Duration {
	if len(cfg.HeartbeatSPM) > 0 {
		return cfg.HeartbeatSPM
	}
	return DefaultHeartbeatSPM
}
