// Command pgmstat converts a trace capture file into a CSV dump of one
// row per captured packet. See cmd/csvtool/main.go for the teacher's
// equivalent over ArchiveRecord/Snapshot files.
package main

import (
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/rtx"

	"github.com/steve-o/openpgm-sub004/trace"
	"github.com/steve-o/openpgm-sub004/wire"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	// A variable to enable mocking for testing.
	logFatal = log.Fatal
)

// packetRow is one CSV row: the fields of a captured packet worth
// dumping for offline inspection.
type packetRow struct {
	Timestamp  string
	GSI        string
	SourcePort uint16
	DestPort   uint16
	Type       string
	Sequence   uint32
	Length     int
	Malformed  bool
}

func toRows(records []trace.Record) []*packetRow {
	rows := make([]*packetRow, 0, len(records))
	for _, rec := range records {
		row := &packetRow{
			Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
			Length:    len(rec.Raw),
		}
		pkt, err := wire.Parse(rec.Raw)
		if err != nil {
			row.Malformed = true
			rows = append(rows, row)
			continue
		}
		row.GSI = gsiString(pkt.Header.GSI)
		row.SourcePort = pkt.Header.SourcePort
		row.DestPort = pkt.Header.DestPort
		row.Type = pkt.Header.Type.String()
		if seq, _, err := wire.DecodeDataBody(pkt.Body); err == nil && pkt.Header.Type.HasData() {
			row.Sequence = seq
		}
		rows = append(rows, row)
	}
	return rows
}

func gsiString(g [6]byte) string {
	b := make([]byte, 0, 17)
	for i, v := range g {
		if i > 0 {
			b = append(b, '.')
		}
		b = appendUint(b, uint64(v))
	}
	return string(b)
}

func appendUint(b []byte, v uint64) []byte {
	if v == 0 {
		return append(b, '0')
	}
	start := len(b)
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	for i, j := start, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// openFile either opens a file, or opens and unzips a file that ends
// with .zst, matching cmd/csvtool/main.go's own openFile.
func openFile(fn string) (io.ReadCloser, error) {
	if strings.HasSuffix(fn, ".zst") {
		return trace.NewReader(fn), nil
	}
	return os.Open(fn)
}

func main() {
	args := os.Args[1:]

	var source io.ReadCloser
	var err error
	source = os.Stdin
	if len(args) == 1 {
		source, err = openFile(args[0])
		rtx.Must(err, "could not open file %q", args[0])
	} else if len(args) > 1 {
		logFatal("too many command-line arguments")
	}
	defer source.Close()

	records, err := trace.ReadAll(source)
	rtx.Must(err, "could not read trace records")
	rtx.Must(gocsv.Marshal(toRows(records), os.Stdout), "could not convert records to CSV")
}
