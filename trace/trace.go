// Package trace captures raw wire datagrams to an external zstd-compressed
// file for offline diagnosis, and reads them back. Grounded on
// zstd/zstd.go's os/exec-piped NewReader/NewWriter wrappers, adapted from
// connection-info snapshots to PGM wire packets. Not part of the protocol
// engine's required surface; ambient debug tooling the way the teacher
// carries zstd for its own non-essential archival path.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/m-lab/go/rtx"
)

// Variables to allow whitebox mocking for testing error conditions.
var (
	osPipe      = os.Pipe
	zstdCommand = "zstd"
)

// recordHeaderLen is 8 bytes of big-endian Unix-nanosecond timestamp
// followed by 4 bytes of big-endian payload length.
const recordHeaderLen = 12

// Writer appends captured wire datagrams to an external zstd-compressed
// file. Close waits for the zstd process to finish flushing to disk.
type Writer struct {
	out io.WriteCloser
	wg  *sync.WaitGroup
	mu  sync.Mutex
}

// NewWriter opens filename for zstd-compressed append-only capture.
func NewWriter(filename string) (*Writer, error) {
	var wg sync.WaitGroup
	wg.Add(1)
	pipeR, pipeW, err := osPipe()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(zstdCommand)
	cmd.Stdin = pipeR
	cmd.Stdout = f

	go func() {
		if err := cmd.Run(); err != nil {
			log.Println("trace: zstd error writing", filename, err)
		}
		pipeR.Close()
		wg.Done()
	}()

	return &Writer{out: pipeW, wg: &wg}, nil
}

// WritePacket appends one captured datagram, framed with its capture
// timestamp and length.
func (w *Writer) WritePacket(ts time.Time, raw []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(raw)))
	if _, err := w.out.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.out.Write(raw)
	return err
}

// Close flushes and waits for the zstd process to finish.
func (w *Writer) Close() error {
	if err := w.out.Close(); err != nil {
		return err
	}
	w.wg.Wait()
	return nil
}

// Record is one captured datagram read back from a trace file.
type Record struct {
	Timestamp time.Time
	Raw       []byte
}

// Reader decompresses and decodes a capture file written by Writer.
// This is expected to be used from offline tooling (cmd/pgmstat and
// tests), so all construction errors are fatal, matching zstd.NewReader's
// own "only expected to be used for tests" contract.
func NewReader(filename string) io.ReadCloser {
	pipeR, pipeW, err := osPipe()
	rtx.Must(err, "trace: could not call os.Pipe")

	cmd := exec.Command(zstdCommand, "-d", "-c", filename)
	cmd.Stdout = pipeW

	f, err := os.Open(filename)
	rtx.Must(err, "trace: could not open %q for zstd", filename)
	f.Close()

	go func() {
		rtx.Must(cmd.Run(), "trace: zstd error reading %q", filename)
		pipeW.Close()
	}()

	return pipeR
}

// ReadAll decodes every record out of r until EOF.
func ReadAll(r io.Reader) ([]Record, error) {
	var records []Record
	var hdr [recordHeaderLen]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return records, fmt.Errorf("trace: reading record header: %w", err)
		}
		tsNano := int64(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])
		raw := make([]byte, length)
		if _, err := io.ReadFull(r, raw); err != nil {
			return records, fmt.Errorf("trace: reading record payload: %w", err)
		}
		records = append(records, Record{Timestamp: time.Unix(0, tsNano), Raw: raw})
	}
}
