package wire

import "bytes"

import "testing"

func TestDataBodyRoundTrip(t *testing.T) {
	body := EncodeDataBody(42, []byte("payload"))
	seq, tsdu, err := DecodeDataBody(body)
	if err != nil {
		t.Fatalf("DecodeDataBody: %v", err)
	}
	if seq != 42 || !bytes.Equal(tsdu, []byte("payload")) {
		t.Errorf("DecodeDataBody = (%d, %q), want (42, \"payload\")", seq, tsdu)
	}
}

func TestDataBodyRejectsTruncated(t *testing.T) {
	if _, _, err := DecodeDataBody([]byte{1, 2}); err == nil {
		t.Error("DecodeDataBody accepted a body shorter than the sequence field")
	}
}

func TestSPMBodyRoundTrip(t *testing.T) {
	want := SPMBody{Sqn: 7, Trail: 3, Lead: 19}
	got, err := DecodeSPMBody(EncodeSPMBody(want))
	if err != nil || got != want {
		t.Errorf("SPMBody round trip = %+v, %v, want %+v, nil", got, err, want)
	}
}

func TestNakBodyRoundTrip(t *testing.T) {
	want := NakBody{Sequence: 99}
	got, err := DecodeNakBody(EncodeNakBody(want))
	if err != nil || got != want {
		t.Errorf("NakBody round trip = %+v, %v, want %+v, nil", got, err, want)
	}
}
