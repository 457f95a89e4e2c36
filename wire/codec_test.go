package wire

import (
	"bytes"
	"testing"

	"github.com/steve-o/openpgm-sub004/gsi"
)

func samplePacket() *Packet {
	g := gsi.GSI{1, 2, 3, 4, 5, 6}
	return &Packet{
		Header: Header{
			SourcePort: 7500,
			DestPort:   7500,
			Type:       TypeODATA,
			GSI:        g,
			DataLength: 4,
		},
		Body: []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestRoundTripNoOptions(t *testing.T) {
	p := samplePacket()
	buf, err := Serialize(p)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Header.SourcePort != p.Header.SourcePort || got.Header.Type != p.Header.Type {
		t.Errorf("header mismatch: %+v", got.Header)
	}
	if !bytes.Equal(got.Body, p.Body) {
		t.Errorf("body = %x, want %x", got.Body, p.Body)
	}
	if len(got.Options) != 0 {
		t.Errorf("expected no options, got %d", len(got.Options))
	}

	buf2, err := Serialize(got)
	if err != nil {
		t.Fatalf("Serialize(parsed): %v", err)
	}
	if !bytes.Equal(buf, buf2) {
		t.Errorf("Serialize(Parse(buf)) != buf: %x vs %x", buf2, buf)
	}
}

func TestRoundTripWithOptions(t *testing.T) {
	p := samplePacket()
	p.Options = []Option{
		ParityGrpOption(42),
		ParityCurOption(3),
	}
	buf, err := Serialize(p)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if buf[5]&HeaderOptPresent == 0 {
		t.Error("HeaderOptPresent not set")
	}

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Options) != 2 {
		t.Fatalf("got %d options, want 2", len(got.Options))
	}
	grp, err := got.Options[0].AsParityGrp()
	if err != nil || grp != 42 {
		t.Errorf("AsParityGrp() = %d, %v, want 42, nil", grp, err)
	}
	cur, err := got.Options[1].AsParityCur()
	if err != nil || cur != 3 {
		t.Errorf("AsParityCur() = %d, %v, want 3, nil", cur, err)
	}

	buf2, err := Serialize(got)
	if err != nil {
		t.Fatalf("Serialize(parsed): %v", err)
	}
	if !bytes.Equal(buf, buf2) {
		t.Errorf("Serialize(Parse(buf)) != buf: %x vs %x", buf2, buf)
	}
}

func TestParseRejectsBadChecksum(t *testing.T) {
	p := samplePacket()
	buf, err := Serialize(p)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	buf[len(buf)-1] ^= 0xff
	if _, err := Parse(buf); err == nil {
		t.Error("Parse accepted a corrupted packet")
	}
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	if _, err := Parse(make([]byte, 4)); err == nil {
		t.Error("Parse accepted a truncated header")
	}
}

func TestParseRejectsNetworkSignificantUnknownOption(t *testing.T) {
	p := samplePacket()
	p.Options = []Option{{Type: 0x3e, NetworkSignificant: true, Body: []byte{0, 0}}}
	buf, err := Serialize(p)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := Parse(buf); err == nil {
		t.Error("Parse accepted an unknown network-significant option")
	}
}

func TestTypeString(t *testing.T) {
	if TypeODATA.String() != "ODATA" {
		t.Errorf("TypeODATA.String() = %q", TypeODATA.String())
	}
	if !TypeODATA.HasData() || !TypeRDATA.HasData() {
		t.Error("ODATA/RDATA should report HasData")
	}
	if TypeSPM.HasData() {
		t.Error("SPM should not report HasData")
	}
}
