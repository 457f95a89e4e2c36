// Package ratelimit implements the token-bucket pacer that bounds repair
// traffic to txw_max_rte (spec.md §4.6, §8 invariant 7: "over any
// interval of length Δt, bytes sent via repair ≤ txw_max_rte · Δt +
// mtu").
//
// golang.org/x/time/rate is deliberately not used here: the source
// engine's retransmit_try_peek/RATE_LIMITED contract needs a
// synchronous "how long until n bytes are available" answer, which
// x/time/rate.Limiter only exposes by allocating and inspecting a
// Reservation, awkward to do without either blocking or leaking unused
// reservations back via Cancel on every non-blocking poll. The bucket
// below is hand-rolled, grounded on saver.Stats's plain counter-struct
// style rather than a borrowed scheduler.
package ratelimit

import (
	"sync"

	"github.com/steve-o/openpgm-sub004/metrics"
)

// Bucket is a byte-denominated token bucket: tokens accrue at ratePerSec
// bytes/sec up to burst, and TryTake reports either success or the wait
// needed before n bytes would be available.
type Bucket struct {
	mu sync.Mutex

	ratePerSec float64
	burst      float64

	tokens float64
	lastUs int64

	stats Stats
}

// Stats are a Bucket's cumulative counters.
type Stats struct {
	BytesGranted uint64
	TakesDenied  uint64
	TakesGranted uint64
}

// New creates a Bucket with the given sustained rate (bytes/sec) and
// burst capacity (bytes), full at construction. nowUs is the caller's
// current monotonic microsecond reading (pgmtime.Clock.NowMicros()).
func New(ratePerSec, burst float64, nowUs int64) *Bucket {
	return &Bucket{
		ratePerSec: ratePerSec,
		burst:      burst,
		tokens:     burst,
		lastUs:     nowUs,
	}
}

// refillLocked accrues tokens for the elapsed time since the last call,
// capped at burst. Callers must hold b.mu.
func (b *Bucket) refillLocked(nowUs int64) {
	if nowUs <= b.lastUs {
		return
	}
	elapsedSec := float64(nowUs-b.lastUs) / 1e6
	b.tokens += elapsedSec * b.ratePerSec
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastUs = nowUs
}

// TryTake attempts to withdraw n bytes' worth of tokens at nowUs. On
// success it returns (true, 0). On failure it returns (false, wait): the
// duration, in microseconds, the caller must wait before n bytes would
// be available -- the RATE_LIMITED return code's wait hint (spec.md
// §4.6, §6).
func (b *Bucket) TryTake(n int, nowUs int64) (ok bool, waitUs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(nowUs)

	need := float64(n)
	if b.tokens >= need {
		b.tokens -= need
		b.stats.BytesGranted += uint64(n)
		b.stats.TakesGranted++
		metrics.RateLimitBytesGrantedTotal.Add(float64(n))
		metrics.RateLimitTakesGrantedTotal.Inc()
		return true, 0
	}
	b.stats.TakesDenied++
	metrics.RateLimitTakesDeniedTotal.Inc()
	deficit := need - b.tokens
	if b.ratePerSec <= 0 {
		return false, -1 // never replenishes; caller should treat as permanently rate limited
	}
	waitUs = int64(deficit / b.ratePerSec * 1e6)
	if waitUs < 1 {
		waitUs = 1
	}
	return false, waitUs
}

// Stats returns a snapshot of the bucket's counters.
func (b *Bucket) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// SetRate reconfigures the sustained rate (e.g. in response to a
// PGM_TXW_MAX_RTE socket-option change after construction).
func (b *Bucket) SetRate(ratePerSec float64, nowUs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(nowUs)
	b.ratePerSec = ratePerSec
}
