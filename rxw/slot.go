package rxw

import (
	"fmt"

	"github.com/steve-o/openpgm-sub004/skb"
)

// SlotState is a Receive Window slot's position in the per-sequence state
// machine (spec.md §4.5).
type SlotState int

// Slot states, per spec.md's state diagram.
const (
	Placeholder SlotState = iota
	BackOff
	WaitNcf
	WaitData
	HaveData
	HaveParity
	Lost
	CommitData
	CommitParity
)

// String names a SlotState.
func (s SlotState) String() string {
	switch s {
	case Placeholder:
		return "PLACEHOLDER"
	case BackOff:
		return "BACK_OFF"
	case WaitNcf:
		return "WAIT_NCF"
	case WaitData:
		return "WAIT_DATA"
	case HaveData:
		return "HAVE_DATA"
	case HaveParity:
		return "HAVE_PARITY"
	case Lost:
		return "LOST"
	case CommitData:
		return "COMMIT_DATA"
	case CommitParity:
		return "COMMIT_PARITY"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// inTimerQueue reports whether a slot in this state lives on one of the
// three FIFO timer queues.
func (s SlotState) inTimerQueue() bool {
	return s == BackOff || s == WaitNcf || s == WaitData
}

// Slot is one sequence number's worth of Receive Window bookkeeping.
type Slot struct {
	Sequence    uint32
	State       SlotState
	Skb         *skb.Skb
	Expiry      int64 // absolute microsecond instant, per pgmtime.Clock
	NcfRetries  int
	DataRetries int
	TgSqn       uint32
}

// AddResult reports what Add did with an incoming skb.
type AddResult int

// AddResult values, per spec.md §4.5.
const (
	Appended AddResult = iota
	Inserted
	Duplicate
	Malformed
	Bounds
)

// String names an AddResult.
func (r AddResult) String() string {
	switch r {
	case Appended:
		return "APPENDED"
	case Inserted:
		return "INSERTED"
	case Duplicate:
		return "DUPLICATE"
	case Malformed:
		return "MALFORMED"
	case Bounds:
		return "BOUNDS"
	default:
		return fmt.Sprintf("AddResult(%d)", int(r))
	}
}
