package main

import (
	"bytes"
	"log"
	"os"
	"testing"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/trace"
	"github.com/steve-o/openpgm-sub004/wire"
)

func TestMainTooManyArgs(t *testing.T) {
	defer func(args []string) {
		os.Args = args
		logFatal = log.Fatal
	}(os.Args)

	os.Args = []string{"test_pgmstat", "file1", "file2"}
	logFatal = func(...interface{}) {
		panic("panic instead of log.Fatal")
	}
	defer func() {
		if e := recover(); e == nil {
			t.Error("should have panicked")
		}
	}()

	main()
}

func TestOpenFilePlain(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/test.txt", []byte("abcd"), 0666); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	r, err := openFile(dir + "/test.txt")
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer r.Close()
	b := make([]byte, 4)
	if _, err := r.Read(b); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(b) != "abcd" {
		t.Errorf("got %q, want \"abcd\"", b)
	}
}

func odataPacket(tsi gsi.TSI, sequence uint32, tsdu string) []byte {
	pkt := &wire.Packet{Header: wire.Header{
		SourcePort: tsi.SPort, Type: wire.TypeODATA, GSI: tsi.GSI,
	}}
	pkt.Body = wire.EncodeDataBody(sequence, []byte(tsdu))
	buf, _ := wire.Serialize(pkt)
	return buf
}

func TestToRowsDecodesAndFlagsMalformedPackets(t *testing.T) {
	tsi := gsi.TSI{GSI: gsi.GSI{1, 2, 3, 4, 5, 6}, SPort: 1000}
	records := []trace.Record{
		{Timestamp: time.Unix(1700000000, 0), Raw: odataPacket(tsi, 42, "hello")},
		{Timestamp: time.Unix(1700000001, 0), Raw: []byte("not a pgm packet")},
	}

	rows := toRows(records)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Malformed {
		t.Error("first record should parse cleanly")
	}
	if rows[0].Sequence != 42 || rows[0].Type != wire.TypeODATA.String() {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[0].GSI != "1.2.3.4.5.6" {
		t.Errorf("got GSI %q, want 1.2.3.4.5.6", rows[0].GSI)
	}
	if !rows[1].Malformed {
		t.Error("second record should be flagged malformed")
	}
}

func TestGsiString(t *testing.T) {
	if got := gsiString(gsi.GSI{0, 10, 255, 1, 2, 3}); got != "0.10.255.1.2.3" {
		t.Errorf("got %q", got)
	}
}

func TestMainReadsStdin(t *testing.T) {
	defer func(args []string, stdin *os.File) {
		os.Args = args
		os.Stdin = stdin
	}(os.Args, os.Stdin)

	tsi := gsi.TSI{GSI: gsi.GSI{9, 9, 9, 9, 9, 9}, SPort: 2000}
	var buf bytes.Buffer
	var hdr [12]byte
	raw := odataPacket(tsi, 1, "x")
	putUint64(hdr[0:8], uint64(time.Now().UnixNano()))
	putUint32(hdr[8:12], uint32(len(raw)))
	buf.Write(hdr[:])
	buf.Write(raw)

	dir := t.TempDir()
	f, err := os.Create(dir + "/stdin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.Write(buf.Bytes())
	f.Close()
	r, err := os.Open(dir + "/stdin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	os.Args = []string{"test_pgmstat"}
	os.Stdin = r
	main()
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func putUint32(b []byte, v uint32) {
	for i := 3; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
