package rxw

import (
	"testing"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/rs"
	"github.com/steve-o/openpgm-sub004/skb"
	"github.com/steve-o/openpgm-sub004/wire"
)

func dataSkb(sequence uint32, body []byte) *skb.Skb {
	p := &wire.Packet{Header: wire.Header{Type: wire.TypeODATA}, Body: body}
	return skb.New(gsi.TSI{}, sequence, p, body, time.Now())
}

func fragSkb(sequence uint32, body []byte, f wire.Fragment) *skb.Skb {
	p := &wire.Packet{
		Header:  wire.Header{Type: wire.TypeODATA},
		Body:    body,
		Options: []wire.Option{wire.FragmentOption(f)},
	}
	return skb.New(gsi.TSI{}, sequence, p, body, time.Now())
}

func paritySkb(sequence uint32, tg uint32, offset uint32, body []byte) *skb.Skb {
	p := &wire.Packet{
		Header: wire.Header{Type: wire.TypeRDATA, Options: wire.HeaderOptPresent},
		Body:   body,
		Options: []wire.Option{
			wire.ParityGrpOption(tg),
			wire.ParityCurOption(offset),
		},
	}
	return skb.New(gsi.TSI{}, sequence, p, body, time.Now())
}

func TestAddBasicOutcomes(t *testing.T) {
	w := New(64)
	if r := w.Add(dataSkb(0, []byte("a")), 0, 100); r != Appended {
		t.Fatalf("first Add = %v, want Appended", r)
	}
	if r := w.Add(dataSkb(2, []byte("c")), 0, 100); r != Inserted {
		t.Fatalf("gap Add = %v, want Inserted", r)
	}
	if r := w.Add(dataSkb(0, []byte("a")), 0, 100); r != Duplicate {
		t.Fatalf("repeat Add = %v, want Duplicate", r)
	}
	if r := w.Add(dataSkb(1000, []byte("x")), 0, 100); r != Bounds {
		t.Fatalf("far Add = %v, want Bounds", r)
	}
}

func TestUpdateGrowsAndAdvancesTrail(t *testing.T) {
	w := New(64)
	w.Update(5, 0, 0, 100)
	if w.Lead() != 5 {
		t.Fatalf("Lead() = %d, want 5", w.Lead())
	}
	if _, _, ok := w.BackOffHead(); !ok {
		t.Fatal("expected BACK_OFF slots after growth")
	}

	// Sequence 2 gets repaired before the trail passes it.
	w.Add(dataSkb(2, []byte("x")), 0, 100)

	w.Update(5, 5, 0, 100)
	if w.Trail() != 5 {
		t.Fatalf("Trail() = %d, want 5", w.Trail())
	}
	stats := w.Stats()
	if stats.RxwAdvanced != 4 {
		t.Fatalf("RxwAdvanced = %d, want 4 (sequences 0,1,3,4 unrepaired)", stats.RxwAdvanced)
	}
	if !w.TakeReset() {
		t.Error("expected a pending RESET after unrepaired loss")
	}
	if w.TakeReset() {
		t.Error("RESET should only surface once")
	}
}

func TestConfirmAndSetStateTransitions(t *testing.T) {
	w := New(64)
	w.Update(3, 0, 0, 100)
	if !w.Confirm(1, 0, 200, 100) {
		t.Fatal("Confirm on a BACK_OFF slot should succeed")
	}
	if seq, _, ok := w.WaitNcfHead(); ok {
		t.Errorf("sequence %d unexpectedly still on WAIT_NCF", seq)
	}
	if seq, _, ok := w.WaitDataHead(); !ok || seq != 1 {
		t.Fatalf("WaitDataHead() = %d, %v, want 1, true", seq, ok)
	}
	if !w.SetState(1, Lost, 0) {
		t.Fatal("SetState should succeed on an existing slot")
	}
	if !w.TakeReset() {
		t.Error("SetState(Lost) should raise a pending RESET")
	}
}

func TestLostMarksSlot(t *testing.T) {
	w := New(64)
	w.Update(2, 0, 0, 100)
	if !w.Lost(0) {
		t.Fatal("Lost on an existing slot should succeed")
	}
	if w.Lost(99) {
		t.Error("Lost on a nonexistent slot should fail")
	}
}

func TestReadvDeliversContiguousData(t *testing.T) {
	w := New(64)
	w.Add(dataSkb(0, []byte("a")), 0, 100)
	w.Add(dataSkb(1, []byte("b")), 0, 100)
	out := w.Readv()
	if len(out) != 2 || string(out[0]) != "a" || string(out[1]) != "b" {
		t.Fatalf("Readv() = %v, want [a b]", out)
	}
	if w.CommitLead() != 2 {
		t.Fatalf("CommitLead() = %d, want 2", w.CommitLead())
	}
	// Re-delivery must not repeat already-committed data.
	if out := w.Readv(); len(out) != 0 {
		t.Fatalf("second Readv() = %v, want none", out)
	}
}

func TestReadvStopsAtGap(t *testing.T) {
	w := New(64)
	w.Add(dataSkb(0, []byte("a")), 0, 100)
	w.Add(dataSkb(2, []byte("c")), 0, 100)
	out := w.Readv()
	if len(out) != 1 || string(out[0]) != "a" {
		t.Fatalf("Readv() = %v, want [a] (sequence 1 missing)", out)
	}
}

func TestReadvReassemblesFragments(t *testing.T) {
	w := New(64)
	f := wire.Fragment{APDUFirstSqn: 0, TotalLength: 6}
	w.Add(fragSkb(0, []byte("foo"), wire.Fragment{APDUFirstSqn: 0, Offset: 0, TotalLength: f.TotalLength}), 0, 100)
	w.Add(fragSkb(1, []byte("bar"), wire.Fragment{APDUFirstSqn: 0, Offset: 3, TotalLength: f.TotalLength}), 0, 100)
	out := w.Readv()
	if len(out) != 1 || string(out[0]) != "foobar" {
		t.Fatalf("Readv() = %v, want [foobar]", out)
	}
}

// TestReadvHoldsPartialAPDUAcrossCalls covers a two-fragment APDU whose
// second fragment hasn't arrived yet on the first Readv call: the first
// fragment's bytes must not be discarded, and neither its slot nor
// commitLead may advance until the whole APDU is actually emitted.
func TestReadvHoldsPartialAPDUAcrossCalls(t *testing.T) {
	w := New(64)
	total := uint32(6)
	w.Add(fragSkb(5, []byte("foo"), wire.Fragment{APDUFirstSqn: 5, Offset: 0, TotalLength: total}), 0, 100)
	// Sequences 0..4 were only ever placeholders; advance the trail past
	// them (as an SPM would) so Readv's walk starts right at fragment 5
	// instead of stopping on that earlier, unrelated gap.
	w.Update(6, 5, 0, 100)

	if out := w.Readv(); len(out) != 0 {
		t.Fatalf("Readv() with an incomplete APDU = %v, want none yet", out)
	}
	// The walk starts at the trail (5) since nothing before it survived,
	// but it must not advance past fragment 5 itself: that would mean
	// treating an unemitted, still-buffered APDU as committed.
	if w.CommitLead() != 5 {
		t.Fatalf("CommitLead() = %d, want 5 (fragment 5 not yet committed)", w.CommitLead())
	}
	if w.slots[5].State != HaveData {
		t.Fatalf("slot 5 state = %v, want HaveData (still pending, not CommitData)", w.slots[5].State)
	}

	w.Add(fragSkb(6, []byte("bar"), wire.Fragment{APDUFirstSqn: 5, Offset: 3, TotalLength: total}), 0, 100)
	out := w.Readv()
	if len(out) != 1 || string(out[0]) != "foobar" {
		t.Fatalf("Readv() after the second fragment arrives = %v, want [foobar]", out)
	}
	if w.CommitLead() != 7 {
		t.Fatalf("CommitLead() = %d, want 7", w.CommitLead())
	}
	if w.slots[5].State != CommitData || w.slots[6].State != CommitData {
		t.Fatalf("slots 5,6 = %v, %v, want both CommitData", w.slots[5].State, w.slots[6].State)
	}
}

func TestFECBlockPromotionRecoversLostPacket(t *testing.T) {
	const n, k = 4, 2
	code, err := rs.New(n, k)
	if err != nil {
		t.Fatalf("rs.New: %v", err)
	}
	w := New(64)
	if err := w.ConfigureFEC(FECConfig{BlockSize: n, GroupSize: k}, code); err != nil {
		t.Fatalf("ConfigureFEC: %v", err)
	}

	packetLen := 8
	src := [][]byte{
		append([]byte("sourceA "), make([]byte, 0)...),
		append([]byte("sourceB "), make([]byte, 0)...),
	}
	parity := make([]byte, packetLen)
	if err := code.Encode(src, 2, parity); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Source packet at offset 0 (absolute sequence 0) is lost; offset 1
	// (sequence 1) and parity offset 2 both arrive.
	if r := w.Add(dataSkb(1, src[1]), 0, 100); r != Inserted {
		t.Fatalf("Add(1) = %v, want Inserted", r)
	}
	if r := w.Add(paritySkb(2, 0, 2, parity), 0, 100); r != Appended {
		t.Fatalf("Add(parity) = %v, want Appended", r)
	}

	out := w.Readv()
	if len(out) != 2 || string(out[0]) != "sourceA " || string(out[1]) != "sourceB " {
		t.Fatalf("Readv() = %v, want recovered+original [sourceA  sourceB ]", out)
	}
}

func TestRemoveCommitFreesDeliveredSlots(t *testing.T) {
	w := New(64)
	w.Add(dataSkb(0, []byte("a")), 0, 100)
	w.Readv()
	w.Update(1, 1, 0, 100)
	if freed := w.RemoveCommit(); freed != 1 {
		t.Fatalf("RemoveCommit() = %d, want 1", freed)
	}
}

func TestObserveSPMSqnDetectsDuplicates(t *testing.T) {
	w := New(64)
	if w.ObserveSPMSqn(5) {
		t.Error("first SPM sequence should not be a duplicate")
	}
	if !w.ObserveSPMSqn(5) {
		t.Error("repeat SPM sequence should be a duplicate")
	}
	if !w.ObserveSPMSqn(3) {
		t.Error("an older SPM sequence should be treated as a duplicate")
	}
	if w.ObserveSPMSqn(6) {
		t.Error("a newer SPM sequence should not be a duplicate")
	}
}
