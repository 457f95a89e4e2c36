package peer

import (
	"net"
	"testing"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
)

func testTSI(b byte) gsi.TSI {
	return gsi.TSI{GSI: gsi.GSI{b, b, b, b, b, b}, SPort: uint16(b)}
}

func TestNewPeerStartsWithOneReference(t *testing.T) {
	now := time.Now()
	p := New(testTSI(1), net.ParseIP("10.0.0.1"), net.ParseIP("239.1.1.1"), 64, now)
	if p.RXW == nil {
		t.Fatal("New should create a Receive Window")
	}
	if !p.Release() {
		t.Error("Release on a fresh peer should reach zero")
	}
}

func TestRetainReleaseBalances(t *testing.T) {
	p := New(testTSI(2), nil, nil, 64, time.Now())
	p.Retain()
	if p.Release() {
		t.Error("first Release after one Retain should not reach zero")
	}
	if !p.Release() {
		t.Error("second Release should reach zero")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	p := New(testTSI(3), nil, nil, 64, now)
	if p.Expired(now.Add(time.Second), 10*time.Second) {
		t.Error("peer should not be expired before peer_expiry elapses")
	}
	if !p.Expired(now.Add(time.Minute), 10*time.Second) {
		t.Error("peer should be expired once peer_expiry elapses")
	}
}

func TestObserveSPMDetectsDuplicatesAndOutOfOrder(t *testing.T) {
	p := New(testTSI(4), nil, nil, 64, time.Now())
	if p.ObserveSPM(5) {
		t.Error("first SPM should not be a duplicate")
	}
	if !p.ObserveSPM(5) {
		t.Error("repeat SPM sequence should be a duplicate")
	}
	if !p.ObserveSPM(2) {
		t.Error("an older SPM sequence should be treated as a duplicate")
	}
	if p.Stats.DupSpms != 2 {
		t.Errorf("DupSpms = %d, want 2", p.Stats.DupSpms)
	}
	if p.Stats.SpmsReceived != 3 {
		t.Errorf("SpmsReceived = %d, want 3", p.Stats.SpmsReceived)
	}
}

func TestSignificantChangeIgnoresPureByteCounts(t *testing.T) {
	prev := Stats{BytesReceived: 100, BytesDelivered: 90}
	cur := prev
	cur.BytesReceived = 5000
	cur.BytesDelivered = 4800
	if changed, diff := cur.SignificantChange(prev); changed {
		t.Errorf("byte-count-only growth should not be significant, got diff %v", diff)
	}

	cur.NaksSent++
	if changed, _ := cur.SignificantChange(prev); !changed {
		t.Error("a counter change besides byte volume should be significant")
	}
}
