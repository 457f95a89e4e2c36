package trace_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/steve-o/openpgm-sub004/trace"
)

func TestReadAllDecodesRecordsWrittenDirectly(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Unix(0, 1700000000123456789)
	a := []byte("hello")
	b := []byte("a slightly longer payload")

	for _, raw := range [][]byte{a, b} {
		var hdr [12]byte
		putRecordHeader(hdr[:], ts, raw)
		buf.Write(hdr[:])
		buf.Write(raw)
	}

	records, err := trace.ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !bytes.Equal(records[0].Raw, a) || !bytes.Equal(records[1].Raw, b) {
		t.Errorf("payload mismatch: %q / %q", records[0].Raw, records[1].Raw)
	}
	if !records[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp mismatch: got %v want %v", records[0].Timestamp, ts)
	}
}

func TestReadAllRejectsTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var hdr [12]byte
	putRecordHeader(hdr[:], time.Now(), []byte("12345"))
	buf.Write(hdr[:])
	buf.WriteString("12") // short of the declared 5 bytes

	if _, err := trace.ReadAll(&buf); err == nil {
		t.Error("expected an error decoding a truncated payload")
	}
}

func putRecordHeader(hdr []byte, ts time.Time, raw []byte) {
	putUint64(hdr[0:8], uint64(ts.UnixNano()))
	putUint32(hdr[8:12], uint32(len(raw)))
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
