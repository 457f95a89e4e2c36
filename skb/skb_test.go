package skb

import (
	"testing"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/wire"
)

func TestRetainReleaseBalances(t *testing.T) {
	s := New(gsi.TSI{}, 0, nil, nil, time.Now())
	if s.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", s.RefCount())
	}
	s.Retain()
	if s.RefCount() != 2 {
		t.Fatalf("RefCount() after Retain = %d, want 2", s.RefCount())
	}
	if s.Release() {
		t.Error("Release() reported last reference too early")
	}
	if !s.Release() {
		t.Error("Release() should report last reference")
	}
}

func TestTSDUOnlyForDataPackets(t *testing.T) {
	data := New(gsi.TSI{}, 0, &wire.Packet{Header: wire.Header{Type: wire.TypeODATA}, Body: []byte("hi")}, nil, time.Now())
	if string(data.TSDU()) != "hi" {
		t.Errorf("TSDU() = %q, want %q", data.TSDU(), "hi")
	}
	spm := New(gsi.TSI{}, 0, &wire.Packet{Header: wire.Header{Type: wire.TypeSPM}, Body: []byte("hi")}, nil, time.Now())
	if spm.TSDU() != nil {
		t.Errorf("TSDU() on SPM = %v, want nil", spm.TSDU())
	}
	if (&Skb{}).TSDU() != nil {
		t.Error("TSDU() on a Skb with no parsed Packet should be nil")
	}
}
